package session

import (
	"context"
	"io"

	"github.com/cloudwego/eino/schema"

	"github.com/wuhu-labs/wuhu/internal/compaction"
	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/provider"
	"github.com/wuhu-labs/wuhu/internal/retry"
	"github.com/wuhu-labs/wuhu/internal/storage"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

// shouldCompact reports whether the current context exceeds the configured
// budget (spec §4.6) and the actor hasn't already given up on this prompt
// admission's successive-compaction budget (compaction.MaxSuccessiveCompactions).
func (a *Actor) shouldCompact(ctx context.Context) bool {
	entries, err := a.deps.Store.GetEntries(ctx, a.id, storage.GetEntriesOptions{})
	if err != nil {
		return false
	}
	_, compactionEntries := buildContextMessagesOnly(entries)
	messages := make([]types.PersistedMessage, len(compactionEntries))
	for i, e := range compactionEntries {
		messages[i] = e.Message
	}
	tokens := compaction.EstimateContextTokens(messages)

	if !compaction.ShouldCompact(tokens, a.deps.Compactor.Enabled, a.deps.Compactor.ContextWindowTokens, a.deps.Compactor.ReserveTokens) {
		a.mu.Lock()
		a.successiveCompactions = 0
		a.mu.Unlock()
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.successiveCompactions < compaction.MaxSuccessiveCompactions
}

// buildContextMessagesOnly mirrors buildContext's entry slicing but returns
// raw PersistedMessage values (not schema.Message) paired with their entry
// ids, for the token estimator and the Compaction Engine's own cut-point
// selection, which both operate on types.PersistedMessage directly.
func buildContextMessagesOnly(entries []*types.Entry) (startEntryID int64, out []compaction.Entry) {
	if len(entries) == 0 {
		return 0, nil
	}
	startIdx := 0
	if entries[0].Payload.Kind == types.PayloadHeader {
		startIdx = 1
	}
	if latest := latestCompaction(entries); latest != nil {
		for i, e := range entries {
			if e.ID >= latest.FirstKeptEntry {
				startIdx = i
				break
			}
		}
	}
	for _, e := range entries[startIdx:] {
		if e.Payload.Kind == types.PayloadMessage {
			out = append(out, compaction.Entry{EntryID: e.ID, Message: *e.Payload.Message})
		}
	}
	if len(entries) > startIdx {
		startEntryID = entries[startIdx].ID
	}
	return startEntryID, out
}

// runCompaction runs one compaction attempt (spec §4.6), summarizing via
// the same provider/Retry Wrapper stack the Agent Loop uses (purpose
// "compaction"), and appends the resulting compaction entry. Failure is
// swallowed: a failed compaction attempt still counts against
// MaxSuccessiveCompactions but never aborts the turn (spec §4.6, §7).
func (a *Actor) runCompaction(ctx context.Context, prov provider.Provider, model provider.ModelInfo) {
	entries, err := a.deps.Store.GetEntries(ctx, a.id, storage.GetEntriesOptions{})
	if err != nil {
		return
	}
	_, compactionEntries := buildContextMessagesOnly(entries)
	if len(compactionEntries) == 0 {
		return
	}

	previousSummary := ""
	if latest := latestCompaction(entries); latest != nil {
		previousSummary = latest.Summary
	}

	summarize := func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		var out string
		attemptErr := retry.Do(ctx, "compaction", a.deps.Retry, sessionRetryHooks{a: a}, func(ctx context.Context) (bool, error) {
			req := &provider.CompletionRequest{
				Model: model.ID,
				Messages: []*schema.Message{
					{Role: schema.System, Content: systemPrompt},
					{Role: schema.User, Content: userPrompt},
				},
				MaxTokens:   defaultMaxTokens,
				Temperature: 0,
			}
			stream, err := prov.CreateCompletion(ctx, req)
			if err != nil {
				return false, err
			}
			defer stream.Close()

			var text string
			yielded := false
			for {
				msg, recvErr := stream.Recv()
				if recvErr == io.EOF {
					break
				}
				if recvErr != nil {
					return yielded, recvErr
				}
				yielded = true
				text += msg.Content
			}
			out = text
			return yielded, nil
		})
		return out, attemptErr
	}

	result, err := compaction.Compact(ctx, compaction.Input{
		Entries:          compactionEntries,
		PreviousSummary:  previousSummary,
		KeepRecentTokens: a.deps.Compactor.KeepRecentTokens,
		Summarize:        summarize,
	})

	a.mu.Lock()
	a.successiveCompactions++
	a.mu.Unlock()

	if err != nil {
		return
	}

	entry, err := a.deps.Store.AppendEntry(ctx, a.id, types.CompactionPayloadOf(types.CompactionPayload{
		Summary:        result.Summary,
		TokensBefore:   result.TokensBefore,
		FirstKeptEntry: result.FirstKeptEntryID,
	}))
	if err != nil {
		return
	}
	a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: a.id, Data: entry})

	a.mu.Lock()
	a.successiveCompactions = 0
	a.mu.Unlock()
}
