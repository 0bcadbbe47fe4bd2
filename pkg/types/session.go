// Package types provides the core data types of the session runtime: the
// durable Session/Entry/Payload model, queue-lane journal events, and the
// runtime error taxonomy. Everything here is wire-stable: JSON tags are
// load-bearing because Entry payloads are persisted as JSON blobs and must
// round-trip losslessly.
package types

// SessionType selects which local tools a session's Agent Loop may dispatch
// (see the channel restriction policy in internal/session).
type SessionType string

const (
	SessionTypeChannel       SessionType = "channel"
	SessionTypeForkedChannel SessionType = "forked_channel"
	SessionTypeCoding        SessionType = "coding"
)

// EnvironmentKind distinguishes how a session's working directory was
// provisioned. Template materialization itself is out of core scope; the
// runtime only carries the descriptor.
type EnvironmentKind string

const (
	EnvironmentLocal          EnvironmentKind = "local"
	EnvironmentFolderTemplate EnvironmentKind = "folder-template"
)

// Environment describes the working directory a session's tools operate in.
type Environment struct {
	Name          string          `json:"name"`
	Kind          EnvironmentKind `json:"kind"`
	Path          string          `json:"path"`
	TemplatePath  *string         `json:"template_path,omitempty"`
	StartupScript *string         `json:"startup_script,omitempty"`
}

// ReasoningEffort is a model-agnostic knob the Agent Loop may forward to the
// provider; providers that don't support it ignore it.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// Session is the durable root of one conversation thread (spec §3).
type Session struct {
	ID              string           `json:"id"`
	Provider        string           `json:"provider"`
	Model           string           `json:"model"`
	ReasoningEffort *ReasoningEffort `json:"reasoning_effort,omitempty"`
	CWD             string           `json:"cwd"`
	Runner          *string          `json:"runner,omitempty"`
	ParentSessionID *string          `json:"parent_session_id,omitempty"`
	Type            SessionType      `json:"type"`
	Environment     Environment      `json:"environment"`
	CreatedAt       int64            `json:"created_at"`
	UpdatedAt       int64            `json:"updated_at"`
	HeadEntryID     int64            `json:"head_entry_id"`
	TailEntryID     int64            `json:"tail_entry_id"`
}

// SessionSettings is the payload of a session_settings entry: a committed
// provider/model change (spec §3, §4.2 pending-model-selection).
type SessionSettings struct {
	Provider        string           `json:"provider"`
	Model           string           `json:"model"`
	ReasoningEffort *ReasoningEffort `json:"reasoning_effort,omitempty"`
}

// SessionStatus is the actor's derived run state (spec §4.2).
type SessionStatus string

const (
	SessionStatusIdle    SessionStatus = "idle"
	SessionStatusRunning SessionStatus = "running"
	SessionStatusStopped SessionStatus = "stopped"
)
