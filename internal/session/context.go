package session

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

// buildContext implements Context Extraction (spec §4.5): find the slice of
// entries to send the model (after the header, or after the latest
// compaction's first_kept_entry_id with a synthetic summary prefix),
// convert message payloads to schema.Message (falling back to best-effort
// text rendering for unknown/custom_message), apply the group-chat prefix
// rule, and finally run the in-memory orphan-tool_call repair pass.
func buildContext(entries []*types.Entry) (systemPrompt string, messages []*schema.Message) {
	if len(entries) == 0 {
		return "", nil
	}

	startIdx := 0
	if entries[0].Payload.Kind == types.PayloadHeader {
		systemPrompt = entries[0].Payload.Header.SystemPrompt
		startIdx = 1
	}

	var summaryPrefix string
	if latest := latestCompaction(entries); latest != nil {
		summaryPrefix = latest.Summary
		for i, e := range entries {
			if e.ID >= latest.FirstKeptEntry {
				startIdx = i
				break
			}
		}
	}

	if summaryPrefix != "" {
		messages = append(messages, &schema.Message{
			Role:    schema.User,
			Content: "<context-summary>\n" + summaryPrefix + "\n</context-summary>",
		})
	}

	sawGroupChatReminder := false
	for _, e := range entries[startIdx:] {
		switch e.Payload.Kind {
		case types.PayloadMessage:
			msg := e.Payload.Message
			converted := convertMessage(*msg, sawGroupChatReminder)
			if converted != nil {
				messages = append(messages, converted)
			}
		case types.PayloadCustom:
			if e.Payload.Custom.CustomType == types.CustomGroupChatReminderV1 {
				sawGroupChatReminder = true
			}
			// wuhu_fork_point_v1 and other custom markers are recognized and
			// skipped here but remain in the persisted chain (spec §6
			// supplemented features).
		case types.PayloadToolExecution, types.PayloadSessionSettings, types.PayloadCompaction, types.PayloadHeader:
			// Breadcrumbs and settings/compaction checkpoints are not sent
			// to the model directly; their effect (if any) already shows up
			// via message payloads or the summary prefix above.
		}
	}

	return systemPrompt, repairOrphanToolCalls(messages)
}

// latestCompaction returns the most recent compaction payload in entries,
// or nil if none exists.
func latestCompaction(entries []*types.Entry) *types.CompactionPayload {
	var latest *types.CompactionPayload
	for _, e := range entries {
		if e.Payload.Kind == types.PayloadCompaction {
			latest = e.Payload.Compaction
		}
	}
	return latest
}

// convertMessage renders one PersistedMessage as a schema.Message (spec
// §4.5 step 3). unknown and custom_message fall back to TextOf's
// best-effort rendering, surfaced as a user-role text message since
// neither has a natural assistant/tool shape. Returns nil for messages
// that carry no usable content (e.g. an assistant message that only
// recorded an error with no text or tool calls).
func convertMessage(m types.PersistedMessage, groupChatActive bool) *schema.Message {
	switch m.Role {
	case types.RoleUser:
		content := joinText(m.Content)
		if groupChatActive {
			content = fmt.Sprintf("<%s>:\n\n%s", userLabel(m.User), content)
		}
		return &schema.Message{Role: schema.User, Content: content}

	case types.RoleAssistant:
		content := joinText(m.Content)
		var calls []schema.ToolCall
		for _, c := range m.Content {
			if c.Type == types.ContentToolCall {
				calls = append(calls, schema.ToolCall{
					ID:       c.ID,
					Function: schema.FunctionCall{Name: c.Name, Arguments: c.Arguments},
				})
			}
		}
		if content == "" && len(calls) == 0 {
			return nil
		}
		return &schema.Message{Role: schema.Assistant, Content: content, ToolCalls: calls}

	case types.RoleToolResult:
		return &schema.Message{Role: schema.Tool, Content: joinText(m.Content), ToolCallID: m.ToolCallID}

	case types.RoleCustomMessage, types.RoleUnknown:
		text := m.TextOf()
		if text == "" {
			return nil
		}
		return &schema.Message{Role: schema.User, Content: text}

	default:
		return nil
	}
}

func userLabel(user string) string {
	if user == "" {
		return "user"
	}
	return user
}

func joinText(blocks []types.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Type == types.ContentText {
			out += b.Text
		}
	}
	return out
}

const lostToolCallText = "tool result unavailable before this turn ended"

// repairOrphanToolCalls is the in-memory (never persisted) repair pass run
// during context extraction (spec §4.5 step 5, §4.3 "assistant content
// repair (in-memory)"): any assistant tool_call whose id no tool message in
// the list carries gets a synthetic tool_result message inserted
// immediately after its assistant message, so the model is never
// handed a dangling tool_call when context is rebuilt mid-turn.
func repairOrphanToolCalls(messages []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	satisfied := make(map[string]bool)
	for _, m := range messages {
		if m.Role == schema.Tool && m.ToolCallID != "" {
			satisfied[m.ToolCallID] = true
		}
	}

	for i, m := range messages {
		out = append(out, m)
		if m.Role != schema.Assistant || len(m.ToolCalls) == 0 {
			continue
		}
		for _, tc := range m.ToolCalls {
			if satisfied[tc.ID] {
				continue
			}
			if hasMatchingToolResultAfter(messages, i, tc.ID) {
				continue
			}
			out = append(out, &schema.Message{Role: schema.Tool, Content: lostToolCallText, ToolCallID: tc.ID})
		}
	}
	return out
}

func hasMatchingToolResultAfter(messages []*schema.Message, from int, toolCallID string) bool {
	for j := from + 1; j < len(messages); j++ {
		if messages[j].Role == schema.Tool && messages[j].ToolCallID == toolCallID {
			return true
		}
	}
	return false
}
