package types

import "encoding/json"

// MessageRole discriminates the PersistedMessage tagged union (spec §3).
type MessageRole string

const (
	RoleUser          MessageRole = "user"
	RoleAssistant     MessageRole = "assistant"
	RoleToolResult    MessageRole = "tool_result"
	RoleCustomMessage MessageRole = "custom_message"
	RoleUnknown       MessageRole = "unknown"
)

// TokenUsage contains token usage statistics for an assistant message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitempty"`
}

// CacheUsage contains cache hit/write statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// MessageError represents an error that occurred while producing an
// assistant message (spec §7 ModelStreamError becomes this).
type MessageError struct {
	Type    string `json:"type"` // "api" | "abort" | "max_steps" | "max_tokens"
	Message string `json:"message"`
}

// PersistedMessage is the tagged union carried by a message payload (spec
// §3). Exactly one of the role-specific fields is populated, matching Role.
type PersistedMessage struct {
	Role MessageRole `json:"role"`

	// user
	User      string         `json:"user,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	Timestamp int64          `json:"timestamp"`

	// assistant
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model,omitempty"`
	Usage      *TokenUsage   `json:"usage,omitempty"`
	StopReason string        `json:"stop_reason,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// tool_result
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	Details    any    `json:"details,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	// custom_message
	CustomType string `json:"custom_type,omitempty"`
	Display    string `json:"display,omitempty"`

	// unknown
	RawRole string          `json:"raw_role,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// NewUserMessage builds a user PersistedMessage.
func NewUserMessage(user string, content []ContentBlock, at int64) PersistedMessage {
	return PersistedMessage{Role: RoleUser, User: user, Content: content, Timestamp: at}
}

// NewAssistantMessage builds an assistant PersistedMessage.
func NewAssistantMessage(provider, model string, content []ContentBlock, usage *TokenUsage, stopReason string, msgErr *MessageError, at int64) PersistedMessage {
	return PersistedMessage{
		Role: RoleAssistant, Provider: provider, Model: model, Content: content,
		Usage: usage, StopReason: stopReason, Error: msgErr, Timestamp: at,
	}
}

// NewToolResultMessage builds a tool_result PersistedMessage.
func NewToolResultMessage(toolCallID, toolName string, content []ContentBlock, details any, isError bool, at int64) PersistedMessage {
	return PersistedMessage{
		Role: RoleToolResult, ToolCallID: toolCallID, ToolName: toolName,
		Content: content, Details: details, IsError: isError, Timestamp: at,
	}
}

// NewCustomMessage builds a custom_message PersistedMessage.
func NewCustomMessage(customType string, content []ContentBlock, details any, display string, at int64) PersistedMessage {
	return PersistedMessage{
		Role: RoleCustomMessage, CustomType: customType, Content: content,
		Details: details, Display: display, Timestamp: at,
	}
}

// NewUnknownMessage builds the forward-compatibility fallback variant.
func NewUnknownMessage(rawRole string, raw json.RawMessage) PersistedMessage {
	return PersistedMessage{Role: RoleUnknown, RawRole: rawRole, Raw: raw}
}

// TextOf best-effort renders a message to a single text string, used by
// context extraction for unknown/custom_message fallback rendering (spec
// §4.5 step 3).
func (m PersistedMessage) TextOf() string {
	var out string
	for _, c := range m.Content {
		if c.Type == ContentText {
			out += c.Text
		}
	}
	if out == "" && m.Display != "" {
		out = m.Display
	}
	return out
}
