package compaction

import (
	"fmt"
	"strings"

	"github.com/wuhu-labs/wuhu/internal/truncate"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

// historySummarySystemPrompt asks the model for the markdown checkpoint
// structure spec §4.6 requires. Grounded on internal/session/compact.go's
// compactionSystemPrompt, restructured to spec's exact section names.
const historySummarySystemPrompt = `You are a conversation summarizer for a coding agent. Produce a structured Markdown checkpoint with exactly these sections:

## Goal
## Constraints & Preferences
## Progress
### Done
### In Progress
### Blocked
## Key Decisions
## Next Steps
## Critical Context

Be concise but preserve everything needed to continue the work without the original messages.`

const historySummaryUpdateSuffix = `

A previous summary is included below. Preserve its content: carry forward every item, moving entries between the Done/In Progress/Blocked buckets as the new messages warrant rather than discarding anything.`

const turnPrefixSummarySystemPrompt = `You are summarizing the early part of an in-progress conversation turn for a coding agent. Produce a concise Markdown summary with exactly these sections:

## Original Request
## Early Progress
## Context for Suffix

Preserve everything needed to understand how the turn started and what has been done so far.`

// renderLimits bounds how much of a message's text is echoed into a
// summarization prompt; the token estimator itself still sees the
// untruncated message (spec §4.6's estimation is exact, only the prompt
// text sent to the model is capped here).
var renderLimits = truncate.Limits{MaxLines: 200, MaxBytes: 8192}

// BuildHistorySummaryPrompt returns the (system, user) prompt pair for the
// history summary (spec §4.6). previousSummary is "" when none exists yet.
func BuildHistorySummaryPrompt(previousSummary string, messages []types.PersistedMessage) (system, user string) {
	system = historySummarySystemPrompt
	var b strings.Builder
	if previousSummary != "" {
		system += historySummaryUpdateSuffix
		b.WriteString("Previous summary:\n\n")
		b.WriteString(previousSummary)
		b.WriteString("\n\n---\n\n")
	}
	b.WriteString(renderTranscript(messages))
	return system, b.String()
}

// BuildTurnPrefixSummaryPrompt returns the (system, user) prompt pair for
// the split-turn prefix summary (spec §4.6).
func BuildTurnPrefixSummaryPrompt(messages []types.PersistedMessage) (system, user string) {
	return turnPrefixSummarySystemPrompt, renderTranscript(messages)
}

func renderTranscript(messages []types.PersistedMessage) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case types.RoleUser:
			b.WriteString("USER:\n")
		case types.RoleAssistant:
			b.WriteString("ASSISTANT:\n")
		case types.RoleToolResult:
			b.WriteString(fmt.Sprintf("TOOL RESULT (%s):\n", m.ToolName))
		case types.RoleCustomMessage:
			b.WriteString(fmt.Sprintf("CUSTOM (%s):\n", m.CustomType))
		default:
			b.WriteString("MESSAGE:\n")
		}

		text := m.TextOf()
		for _, c := range m.Content {
			if c.Type == types.ContentToolCall {
				b.WriteString(fmt.Sprintf("[tool call: %s(%s)]\n", c.Name, c.Arguments))
			}
		}
		if text != "" {
			b.WriteString(truncate.Head(text, renderLimits).Output)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
