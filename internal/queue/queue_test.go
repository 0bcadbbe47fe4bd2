package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

func TestEnqueueThenMaterializeRemovesFromPending(t *testing.T) {
	l := NewLane(types.LaneFollowUp)

	_, err := l.Enqueue("q1", `{"text":"hi"}`, 1)
	require.NoError(t, err)
	require.Len(t, l.Pending(), 1)

	_, err = l.Materialize("q1", 42, 2)
	require.NoError(t, err)
	require.Empty(t, l.Pending())
}

func TestCancelRemovesFromPending(t *testing.T) {
	l := NewLane(types.LaneSteer)

	_, err := l.Enqueue("q1", `{"text":"hi"}`, 1)
	require.NoError(t, err)

	_, err = l.Cancel("q1", 2)
	require.NoError(t, err)
	require.Empty(t, l.Pending())
}

func TestMaterializeAfterCancelErrors(t *testing.T) {
	l := NewLane(types.LaneSteer)
	_, err := l.Enqueue("q1", "", 1)
	require.NoError(t, err)
	_, err = l.Cancel("q1", 2)
	require.NoError(t, err)

	_, err = l.Materialize("q1", 7, 3)
	require.Error(t, err)
}

func TestDoubleEnqueueSameIDErrors(t *testing.T) {
	l := NewLane(types.LaneSystemUrgent)
	_, err := l.Enqueue("dup", "", 1)
	require.NoError(t, err)
	_, err = l.Enqueue("dup", "", 2)
	require.Error(t, err)
}

func TestDoubleCancelErrors(t *testing.T) {
	l := NewLane(types.LaneSystemUrgent)
	_, err := l.Enqueue("q1", "", 1)
	require.NoError(t, err)
	_, err = l.Cancel("q1", 2)
	require.NoError(t, err)
	_, err = l.Cancel("q1", 3)
	require.Error(t, err)
}

func TestCancelAfterMaterializeIsNoOpOnPendingButJournaled(t *testing.T) {
	l := NewLane(types.LaneFollowUp)
	_, err := l.Enqueue("q1", "", 1)
	require.NoError(t, err)
	_, err = l.Materialize("q1", 9, 2)
	require.NoError(t, err)

	ev, err := l.Cancel("q1", 3)
	require.NoError(t, err)
	require.Equal(t, types.QueueEventCanceled, ev.Kind)
	require.Empty(t, l.Pending()) // was already not pending
}

func TestJournalSinceReturnsOnlyStrictlyGreaterCursor(t *testing.T) {
	l := NewLane(types.LaneFollowUp)
	first, err := l.Enqueue("q1", "", 1)
	require.NoError(t, err)
	_, err = l.Enqueue("q2", "", 2)
	require.NoError(t, err)
	_, err = l.Enqueue("q3", "", 3)
	require.NoError(t, err)

	events := l.JournalSince(first.Cursor)
	require.Len(t, events, 2)
	for _, ev := range events {
		require.Greater(t, ev.Cursor, first.Cursor)
	}
}

func TestBackfillSinceReturnsOnlyStrictlyGreaterJournalEvents(t *testing.T) {
	l := NewLane(types.LaneFollowUp)
	first, err := l.Enqueue("q1", "", 1)
	require.NoError(t, err)
	_, err = l.Enqueue("q2", "", 2)
	require.NoError(t, err)

	b := l.BackfillSince(first.Cursor)
	require.Len(t, b.Journal, 1)
	require.Equal(t, "q2", b.Journal[0].ItemID)
	require.Len(t, b.Pending, 2, "Pending reflects full current state, not just the delta")
	require.Equal(t, l.Cursor(), b.Cursor)
}

func TestBackfillSinceEmptyMatchesBackfill(t *testing.T) {
	l := NewLane(types.LaneFollowUp)
	_, err := l.Enqueue("q1", "", 1)
	require.NoError(t, err)

	require.Equal(t, l.Backfill(), l.BackfillSince(""))
}

func TestCursorsAreMonotonicallyIncreasing(t *testing.T) {
	l := NewLane(types.LaneFollowUp)
	var last string
	for i := 0; i < 5; i++ {
		ev, err := l.Enqueue(string(rune('a'+i)), "", int64(i))
		require.NoError(t, err)
		require.Greater(t, ev.Cursor, last)
		last = ev.Cursor
	}
}

func TestPendingPreservesEnqueueOrder(t *testing.T) {
	l := NewLane(types.LaneFollowUp)
	ids := []string{"c", "a", "b"}
	for i, id := range ids {
		_, err := l.Enqueue(id, "", int64(i))
		require.NoError(t, err)
	}
	pending := l.Pending()
	require.Len(t, pending, 3)
	for i, id := range ids {
		require.Equal(t, id, pending[i].ID)
	}
}

func TestLedgerHasThreeFixedLanes(t *testing.T) {
	l := NewLedger()
	for _, name := range types.AllLanes {
		require.NotNil(t, l.Lane(name))
	}
	require.Nil(t, l.Lane(types.QueueLane("bogus")))
}

func TestBackfillReflectsPendingAndJournal(t *testing.T) {
	l := NewLane(types.LaneSteer)
	_, err := l.Enqueue("q1", `{"text":"hi"}`, 1)
	require.NoError(t, err)

	b := l.Backfill()
	require.Len(t, b.Pending, 1)
	require.Len(t, b.Journal, 1)
	require.Equal(t, b.Journal[len(b.Journal)-1].Cursor, b.Cursor)
}

func TestReplayingJournalReproducesPendingSet(t *testing.T) {
	l := NewLane(types.LaneFollowUp)
	_, err := l.Enqueue("q1", "", 1)
	require.NoError(t, err)
	_, err = l.Enqueue("q2", "", 2)
	require.NoError(t, err)
	_, err = l.Materialize("q1", 10, 3)
	require.NoError(t, err)
	_, err = l.Cancel("q2", 4)
	require.NoError(t, err)

	journal := l.JournalSince("")
	replayed := replayPending(journal)
	require.Empty(t, replayed)
}

// replayPending independently reconstructs the pending set from a raw
// journal slice, mirroring spec §4.4's "enqueued ∧ ¬canceled ∧
// ¬materialized" definition without relying on Lane's internal maps.
func replayPending(journal []types.QueueEvent) map[string]bool {
	enqueued := map[string]bool{}
	done := map[string]bool{}
	for _, ev := range journal {
		switch ev.Kind {
		case types.QueueEventEnqueued:
			enqueued[ev.ItemID] = true
		case types.QueueEventCanceled, types.QueueEventMaterialized:
			done[ev.ItemID] = true
		}
	}
	pending := map[string]bool{}
	for id := range enqueued {
		if !done[id] {
			pending[id] = true
		}
	}
	return pending
}
