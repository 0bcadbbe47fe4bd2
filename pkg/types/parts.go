package types

// ContentType discriminates ContentBlock (spec §3: "Content block (inside
// messages)").
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentToolCall ContentType = "tool_call"
	ContentThinking ContentType = "reasoning"
)

// ContentBlock is a single piece of message content. Exactly one group of
// fields is populated, matching Type.
type ContentBlock struct {
	Type ContentType `json:"type"`

	// text
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_call
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments jsonRawOrString `json:"arguments,omitempty"`

	// reasoning
	Summary           []string `json:"summary,omitempty"`
	EncryptedContent  string   `json:"encrypted_content,omitempty"`
}

// jsonRawOrString keeps tool-call arguments as opaque JSON text. A plain
// string alias is enough here: the Agent Loop never interprets argument
// contents, only forwards them, and this keeps (de)serialization lossless
// without importing encoding/json machinery into every call site.
type jsonRawOrString = string

// NewTextBlock builds a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// NewToolCallBlock builds a tool_call content block. arguments is a raw JSON
// object string, e.g. `{"path":"a.go"}`.
func NewToolCallBlock(id, name, arguments string) ContentBlock {
	return ContentBlock{Type: ContentToolCall, ID: id, Name: name, Arguments: arguments}
}

// NewReasoningBlock builds a reasoning content block.
func NewReasoningBlock(id string, summary []string, encrypted string) ContentBlock {
	return ContentBlock{Type: ContentThinking, ID: id, Summary: summary, EncryptedContent: encrypted}
}
