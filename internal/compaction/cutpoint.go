package compaction

import "github.com/wuhu-labs/wuhu/pkg/types"

// CutPoint is the result of selecting where to cut a message timeline for
// compaction (spec §4.6 "Cut-point selection").
type CutPoint struct {
	// Index is the earliest valid cut point: messages[:Index] is compacted
	// away, messages[Index:] is kept verbatim. Index==0 means nothing
	// qualifies for compaction.
	Index int
	// TurnStart is non-nil when Index lands mid-turn: messages[*TurnStart]
	// is the preceding user message that opens the turn, and
	// [*TurnStart, Index) is the split turn prefix.
	TurnStart *int
}

// SelectCutPoint implements spec §4.6: accumulate token estimates from the
// end of messages backwards until the running total reaches
// keepRecentTokens, then take the earliest index at or after that point
// whose role is not tool_result (cutting at a tool_result would orphan its
// call). If the chosen cut does not land on a user message, the nearest
// preceding user message marks the turn start and a split-turn prefix
// exists between it and the cut.
func SelectCutPoint(messages []types.PersistedMessage, keepRecentTokens int) CutPoint {
	n := len(messages)
	if n == 0 {
		return CutPoint{Index: 0}
	}

	accumIdx := 0 // if the threshold is never reached, keep everything
	accum := 0
	reached := false
	for i := n - 1; i >= 0; i-- {
		accum += EstimateMessage(messages[i])
		if accum >= keepRecentTokens {
			accumIdx = i
			reached = true
			break
		}
	}
	if !reached {
		return CutPoint{Index: 0}
	}

	cut := accumIdx
	for cut < n && messages[cut].Role == types.RoleToolResult {
		cut++
	}
	if cut >= n {
		// No valid cut point in range; nothing can be safely compacted.
		return CutPoint{Index: 0}
	}

	if messages[cut].Role == types.RoleUser {
		return CutPoint{Index: cut}
	}

	for i := cut - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			turnStart := i
			return CutPoint{Index: cut, TurnStart: &turnStart}
		}
	}
	// No preceding user message at all (e.g. cut lands in the opening
	// header/system turn): treat as a plain cut with no split prefix.
	return CutPoint{Index: cut}
}
