package types

// PayloadKind discriminates Payload, the tagged union stored in every Entry
// (spec §3).
type PayloadKind string

const (
	PayloadHeader          PayloadKind = "header"
	PayloadMessage         PayloadKind = "message"
	PayloadToolExecution   PayloadKind = "tool_execution"
	PayloadCompaction      PayloadKind = "compaction"
	PayloadSessionSettings PayloadKind = "session_settings"
	PayloadCustom          PayloadKind = "custom"
)

// ToolExecutionPhase discriminates a tool_execution payload (spec §3:
// "observational breadcrumbs ... distinct from tool_result messages").
type ToolExecutionPhase string

const (
	ToolExecutionStart ToolExecutionPhase = "start"
	ToolExecutionEnd   ToolExecutionPhase = "end"
)

// HeaderPayload is the session root entry's payload.
type HeaderPayload struct {
	SystemPrompt string         `json:"system_prompt"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ToolExecutionPayload records a tool call's lifecycle, independent of the
// tool_result message that also gets appended to the transcript.
type ToolExecutionPayload struct {
	Phase      ToolExecutionPhase `json:"phase"`
	ToolCallID string             `json:"tool_call_id"`
	ToolName   string             `json:"tool_name"`
	Arguments  string             `json:"arguments"`
	Result     *string            `json:"result,omitempty"`
	IsError    bool               `json:"is_error,omitempty"`
}

// CompactionPayload is a summarization checkpoint (spec §3, §4.6).
type CompactionPayload struct {
	Summary         string `json:"summary"`
	TokensBefore    int    `json:"tokens_before"`
	FirstKeptEntry  int64  `json:"first_kept_entry_id"`
}

// CustomPayload is an opaque extension point; CustomType is one of the
// stable strings in the custom entry type registry (spec §6), e.g.
// "wuhu_group_chat_reminder_v1", "wuhu_llm_retry_v1".
type CustomPayload struct {
	CustomType string         `json:"custom_type"`
	Data       map[string]any `json:"data,omitempty"`
}

// Custom entry type registry (spec §6), stable strings recognized by the
// core.
const (
	CustomGroupChatReminderV1 = "wuhu_group_chat_reminder_v1"
	CustomForkPointV1         = "wuhu_fork_point_v1"
	CustomLLMRetryV1          = "wuhu_llm_retry_v1"
	CustomLLMGiveUpV1         = "wuhu_llm_give_up_v1"
	CustomExecutionStopped    = "wuhu_execution_stopped"
)

// Payload is the tagged union carried by every Entry (spec §3). Exactly one
// of the typed fields is populated, matching Kind.
type Payload struct {
	Kind PayloadKind `json:"kind"`

	Header          *HeaderPayload          `json:"header,omitempty"`
	Message         *PersistedMessage       `json:"message,omitempty"`
	ToolExecution   *ToolExecutionPayload   `json:"tool_execution,omitempty"`
	Compaction      *CompactionPayload      `json:"compaction,omitempty"`
	SessionSettings *SessionSettings        `json:"session_settings,omitempty"`
	Custom          *CustomPayload          `json:"custom,omitempty"`
}

func HeaderPayloadOf(systemPrompt string, metadata map[string]any) Payload {
	return Payload{Kind: PayloadHeader, Header: &HeaderPayload{SystemPrompt: systemPrompt, Metadata: metadata}}
}

func MessagePayloadOf(m PersistedMessage) Payload {
	return Payload{Kind: PayloadMessage, Message: &m}
}

func ToolExecutionPayloadOf(p ToolExecutionPayload) Payload {
	return Payload{Kind: PayloadToolExecution, ToolExecution: &p}
}

func CompactionPayloadOf(p CompactionPayload) Payload {
	return Payload{Kind: PayloadCompaction, Compaction: &p}
}

func SessionSettingsPayloadOf(s SessionSettings) Payload {
	return Payload{Kind: PayloadSessionSettings, SessionSettings: &s}
}

func CustomPayloadOf(customType string, data map[string]any) Payload {
	return Payload{Kind: PayloadCustom, Custom: &CustomPayload{CustomType: customType, Data: data}}
}

// Entry is a single unit of durable session state (spec §3). Entries are
// never mutated or deleted once appended.
type Entry struct {
	ID            int64   `json:"id"`
	SessionID     string  `json:"session_id"`
	ParentEntryID *int64  `json:"parent_entry_id,omitempty"`
	CreatedAt     int64   `json:"created_at"`
	Payload       Payload `json:"payload"`
}

// IsHeader reports whether this entry is the session's unique header (the
// only entry with a nil ParentEntryID).
func (e Entry) IsHeader() bool {
	return e.ParentEntryID == nil
}

// ToolCallStatus is the derived (not persisted) per-tool-call state (spec
// §3).
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallStarted   ToolCallStatus = "started"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallErrored   ToolCallStatus = "errored"
)
