package tool

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Registry tracks registered tools, keyed by tool id (spec §4.8: "a mapping
// tool_name → (schema, executor)").
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID()] = t
}

// Get retrieves a tool by id.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns every registered tool in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// IDs returns every registered tool id.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}

// ToolInfos renders every registered tool as an eino schema.ToolInfo, for
// internal/provider.CompletionRequest.Tools (spec §4.3 "build context").
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		params := parseJSONSchemaToParams(t.Parameters())
		infos = append(infos, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

// shellTools is spec §4.8's fixed set of shell-running tools subject to the
// channel restriction policy.
var shellTools = map[string]bool{
	"bash":              true,
	"async_bash":        true,
	"async_bash_status": true,
	"swift":             true,
}

// ErrChannelRestricted is returned by CheckChannelRestriction for a shell
// tool invoked from a channel session (spec §4.8).
var ErrChannelRestricted = fmt.Errorf("shell tools are unavailable in channel sessions; use fork to continue this conversation in a coding session")

// CheckChannelRestriction enforces spec §4.8's channel restriction policy:
// shell-running tools fail synchronously (without altering their schema)
// when dispatched inside a session of type "channel".
func CheckChannelRestriction(toolName, sessionType string) error {
	if sessionType == "channel" && shellTools[toolName] {
		return ErrChannelRestricted
	}
	return nil
}

// ValidateArgs checks args against schemaJSON at the type level (spec
// §4.8): every required property is present, every present property's JSON
// kind matches its declared type, and — when the schema declares
// additionalProperties:false — no unrecognized property names are present.
func ValidateArgs(schemaJSON, args json.RawMessage) error {
	var decl struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required             []string `json:"required"`
		AdditionalProperties *bool    `json:"additionalProperties"`
	}
	if err := json.Unmarshal(schemaJSON, &decl); err != nil {
		return fmt.Errorf("tool: invalid parameter schema: %w", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(args, &got); err != nil {
		return fmt.Errorf("tool: arguments must be a JSON object: %w", err)
	}

	for _, name := range decl.Required {
		if _, ok := got[name]; !ok {
			return fmt.Errorf("tool: missing required argument %q", name)
		}
	}

	rejectUnknown := decl.AdditionalProperties != nil && !*decl.AdditionalProperties
	for name, raw := range got {
		prop, known := decl.Properties[name]
		if !known {
			if rejectUnknown {
				return fmt.Errorf("tool: unexpected argument %q", name)
			}
			continue
		}
		if prop.Type != "" && !jsonKindMatches(prop.Type, raw) {
			return fmt.Errorf("tool: argument %q must be of type %s", name, prop.Type)
		}
	}
	return nil
}

func jsonKindMatches(declared string, raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch declared {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer", "number":
		_, ok := v.(float64)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

// parseJSONSchemaToParams converts a JSON Schema object into eino
// ParameterInfo, for ToolInfos.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}
	return params
}
