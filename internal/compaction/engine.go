package compaction

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

// ErrNothingToCompact is returned when no valid cut point reduces the
// timeline (spec §4.6: compaction only runs once the threshold is crossed
// and a genuine cut exists).
var ErrNothingToCompact = errors.New("compaction: no valid cut point")

// MaxSuccessiveCompactions is spec §4.6's "at most three successive
// compactions per prompt admission are attempted before giving up." The
// Agent Loop (internal/session), which owns the retry-around-admission
// loop, is responsible for enforcing this bound; it is exported here so
// both packages agree on the constant.
const MaxSuccessiveCompactions = 3

// Entry pairs a persisted message with the Entry Store id it came from, so
// the engine can report first_kept_entry_id (spec §4.6).
type Entry struct {
	EntryID int64
	Message types.PersistedMessage
}

// Summarizer drives one model call through the same stream function the
// Agent Loop uses, purpose-tagged "compaction" for the Retry Wrapper (spec
// §4.6: "runs these via the same model stream function (separately
// rate-limited via the Retry Wrapper as purpose=compaction)"). Supplied by
// the caller; this package has no provider dependency of its own.
type Summarizer func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Input bundles one compaction attempt's inputs (spec §4.6).
type Input struct {
	Entries          []Entry
	PreviousSummary  string
	KeepRecentTokens int
	Summarize        Summarizer
}

// Result is the compaction entry's content (spec §4.6: "appended as a
// compaction entry with first_kept_entry_id pointing at the first retained
// message").
type Result struct {
	Summary          string
	FirstKeptEntryID int64
	TokensBefore     int
	SplitTurn        bool
}

// Compact runs one compaction attempt: estimate, select a cut point,
// summarize (concurrently if the cut splits a turn), and concatenate.
func Compact(ctx context.Context, in Input) (Result, error) {
	messages := make([]types.PersistedMessage, len(in.Entries))
	for i, e := range in.Entries {
		messages[i] = e.Message
	}
	tokensBefore := EstimateContextTokens(messages)

	cp := SelectCutPoint(messages, in.KeepRecentTokens)
	if cp.Index <= 0 {
		return Result{}, ErrNothingToCompact
	}

	if cp.TurnStart == nil {
		sys, user := BuildHistorySummaryPrompt(in.PreviousSummary, messages[:cp.Index])
		summary, err := in.Summarize(ctx, sys, user)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Summary:          summary,
			FirstKeptEntryID: in.Entries[cp.Index].EntryID,
			TokensBefore:     tokensBefore,
		}, nil
	}

	historyMessages := messages[:*cp.TurnStart]
	turnPrefixMessages := messages[*cp.TurnStart:cp.Index]

	var historySummary, turnPrefixSummary string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sys, user := BuildHistorySummaryPrompt(in.PreviousSummary, historyMessages)
		s, err := in.Summarize(gctx, sys, user)
		historySummary = s
		return err
	})
	g.Go(func() error {
		sys, user := BuildTurnPrefixSummaryPrompt(turnPrefixMessages)
		s, err := in.Summarize(gctx, sys, user)
		turnPrefixSummary = s
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	summary := historySummary + "\n\n---\n\n**Turn Context (split turn):**\n\n" + turnPrefixSummary
	return Result{
		Summary:          summary,
		FirstKeptEntryID: in.Entries[cp.Index].EntryID,
		TokensBefore:     tokensBefore,
		SplitTurn:        true,
	}, nil
}
