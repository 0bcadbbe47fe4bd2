// Package compaction is the Compaction Engine (spec §4.6): token
// estimation, cut-point selection, and summary generation that keeps a
// session's effective context within its provider's window.
//
// Grounded on internal/session/compact.go: the same two-prompt design
// (history checkpoint vs. turn-prefix summary), the same
// "~4 characters per token" estimateTokens heuristic (here made an exact
// ceiling per spec §4.6), and the same model-summarization-via-provider-
// stream shape — but driven by spec's exact cut-point algorithm and
// markdown checkpoint sections rather than the teacher's
// MinMessagesToKeep/ContextThreshold heuristic.
package compaction

import (
	"encoding/json"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

// EstimateTokens is spec §4.6's estimator: ceil(chars/4).
func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// EstimateMessage sums character counts of text, tool-call names and JSON
// arguments, reasoning encrypted content, and tool-result details across one
// message, then ceilings the total once (spec §4.6 "Token estimation").
func EstimateMessage(m types.PersistedMessage) int {
	chars := 0
	for _, c := range m.Content {
		switch c.Type {
		case types.ContentText:
			chars += len(c.Text)
		case types.ContentToolCall:
			chars += len(c.Name) + len(c.Arguments)
		case types.ContentThinking:
			chars += len(c.EncryptedContent)
		}
	}
	if m.Details != nil {
		if b, err := json.Marshal(m.Details); err == nil {
			chars += len(b)
		}
	}
	return EstimateTokens(chars)
}

// EstimateContextTokens estimates the total context size of an ordered
// message timeline (oldest first). It prefers the last assistant message's
// usage as a starting point, adding estimates only for messages after it;
// with no usage anywhere it estimates across every message (spec §4.6).
func EstimateContextTokens(messages []types.PersistedMessage) int {
	lastUsageIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAssistant && messages[i].Usage != nil {
			lastUsageIdx = i
			break
		}
	}
	if lastUsageIdx == -1 {
		total := 0
		for _, m := range messages {
			total += EstimateMessage(m)
		}
		return total
	}

	u := messages[lastUsageIdx].Usage
	total := u.Input + u.Output + u.Reasoning
	for _, m := range messages[lastUsageIdx+1:] {
		total += EstimateMessage(m)
	}
	return total
}

// ShouldCompact is spec §4.6's threshold: "triggered when estimated context
// tokens exceed context_window - reserve."
func ShouldCompact(contextTokens int, enabled bool, contextWindowTokens, reserveTokens int) bool {
	return enabled && contextTokens > contextWindowTokens-reserveTokens
}
