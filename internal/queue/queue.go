// Package queue is the Queue Ledger (spec §4.4): three independent,
// identically-shaped priority lanes, each a journal of enqueue/cancel/
// materialize events behind a monotonic opaque cursor. A Session Actor owns
// one Ledger and keeps it entirely in memory — spec §3 "Lifetimes" places
// Session Actors in memory for the process lifetime, with their state
// re-derivable from persistent stores (the Entry Store) rather than the
// ledger itself needing separate persistence.
//
// No teacher file matches this shape; grounded on the seq-based,
// append-then-query pattern of nstogner-operative's
// pkg/store/sqlite/sqlite.go stream_entries table (monotonic seq assigned on
// append, cursor resolved back to a seq for "greater than" queries) adapted
// here to an in-memory, per-lane journal instead of a SQL table.
package queue

import (
	"fmt"
	"sync"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

// Lane is one priority lane's journal (spec §4.4). Zero value is not usable;
// construct with NewLane.
type Lane struct {
	mu      sync.Mutex
	name    types.QueueLane
	journal []types.QueueEvent
	nextSeq int64

	// state per item id, derived incrementally rather than recomputed from
	// the full journal on every call.
	enqueuedAt  map[string]int // index into journal of the enqueued event
	canceled    map[string]bool
	materialized map[string]bool
}

// NewLane creates an empty journal for the given lane name.
func NewLane(name types.QueueLane) *Lane {
	return &Lane{
		name:         name,
		enqueuedAt:   make(map[string]int),
		canceled:     make(map[string]bool),
		materialized: make(map[string]bool),
	}
}

// cursor formats a lane-local sequence number as a fixed-width, totally
// ordered opaque string (spec §4.4: "monotonically non-decreasing opaque
// strings totally ordered within a lane").
func cursor(seq int64) string {
	return fmt.Sprintf("%020d", seq)
}

func (l *Lane) append(kind types.QueueEventKind, itemID string, payload string, transcriptEntry *int64, at int64) types.QueueEvent {
	l.nextSeq++
	ev := types.QueueEvent{
		Cursor:          cursor(l.nextSeq),
		Lane:            l.name,
		Kind:            kind,
		ItemID:          itemID,
		Payload:         payload,
		TranscriptEntry: transcriptEntry,
		At:              at,
	}
	l.journal = append(l.journal, ev)
	return ev
}

// Enqueue journals an `enqueued` event for a new item id (spec §4.4). An id
// already seen in this lane (in any event kind) is rejected: "a queue item
// id is journaled at most once per event kind."
func (l *Lane) Enqueue(itemID string, payload string, at int64) (types.QueueEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.enqueuedAt[itemID]; ok {
		return types.QueueEvent{}, fmt.Errorf("queue: item %q already enqueued in lane %s", itemID, l.name)
	}
	ev := l.append(types.QueueEventEnqueued, itemID, payload, nil, at)
	l.enqueuedAt[itemID] = len(l.journal) - 1
	return ev, nil
}

// Cancel journals a `canceled` event. It is a no-op on `pending` if the item
// was already materialized (spec §4.2: "otherwise the cancel is a no-op
// journaled event"), but still only journaled once per item.
func (l *Lane) Cancel(itemID string, at int64) (types.QueueEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.enqueuedAt[itemID]; !ok {
		return types.QueueEvent{}, fmt.Errorf("queue: cancel of unknown item %q in lane %s", itemID, l.name)
	}
	if l.canceled[itemID] {
		return types.QueueEvent{}, fmt.Errorf("queue: item %q already canceled in lane %s", itemID, l.name)
	}
	ev := l.append(types.QueueEventCanceled, itemID, "", nil, at)
	l.canceled[itemID] = true
	return ev, nil
}

// Materialize journals a `materialized` event once a queued item has become
// a persisted transcript entry (spec §4.4). Rejected if the item was never
// enqueued, was canceled, or was already materialized — preserving
// "materialized implies the item was previously enqueued and never
// canceled."
func (l *Lane) Materialize(itemID string, transcriptEntryID int64, at int64) (types.QueueEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.enqueuedAt[itemID]; !ok {
		return types.QueueEvent{}, fmt.Errorf("queue: materialize of unknown item %q in lane %s", itemID, l.name)
	}
	if l.canceled[itemID] {
		return types.QueueEvent{}, fmt.Errorf("queue: item %q was canceled, cannot materialize in lane %s", itemID, l.name)
	}
	if l.materialized[itemID] {
		return types.QueueEvent{}, fmt.Errorf("queue: item %q already materialized in lane %s", itemID, l.name)
	}
	entryID := transcriptEntryID
	ev := l.append(types.QueueEventMaterialized, itemID, "", &entryID, at)
	l.materialized[itemID] = true
	return ev, nil
}

// Pending recomputes the derived set enqueued ∧ ¬canceled ∧ ¬materialized,
// in enqueue order (spec §4.2, §4.4 "the set of pending can be
// deterministically reconstructed from the journal").
func (l *Lane) Pending() []types.QueueItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingLocked()
}

func (l *Lane) pendingLocked() []types.QueueItem {
	var out []types.QueueItem
	for id, idx := range l.enqueuedAt {
		if l.canceled[id] || l.materialized[id] {
			continue
		}
		ev := l.journal[idx]
		out = append(out, types.QueueItem{ID: id, Lane: l.name, Payload: ev.Payload, At: ev.At})
	}
	sortQueueItemsByEnqueueOrder(out, l.enqueuedAt)
	return out
}

func sortQueueItemsByEnqueueOrder(items []types.QueueItem, enqueuedAt map[string]int) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && enqueuedAt[items[j-1].ID] > enqueuedAt[items[j].ID]; j-- {
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
}

// Cursor returns the lane's current (latest) cursor, or "" if the journal is
// empty.
func (l *Lane) Cursor() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.journal) == 0 {
		return ""
	}
	return l.journal[len(l.journal)-1].Cursor
}

// JournalSince returns journal events with a strictly greater cursor than
// since (spec §4.4: "clients subscribe with an optional since cursor and
// receive only strictly-greater journal events"). An empty since returns the
// full journal.
func (l *Lane) JournalSince(since string) []types.QueueEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if since == "" {
		out := make([]types.QueueEvent, len(l.journal))
		copy(out, l.journal)
		return out
	}
	var out []types.QueueEvent
	for _, ev := range l.journal {
		if ev.Cursor > since {
			out = append(out, ev)
		}
	}
	return out
}

// Backfill snapshots cursor + pending + full journal for a new subscriber
// (spec §4.2 QueueBackfill).
func (l *Lane) Backfill() types.QueueBackfill {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backfillSinceLocked("")
}

// BackfillSince is Backfill restricted to the journal entries strictly
// after since (spec §4.4's subscription-resume contract: "the events
// delivered are exactly those with cursors > C in each lane"). An empty
// since is equivalent to Backfill.
func (l *Lane) BackfillSince(since string) types.QueueBackfill {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backfillSinceLocked(since)
}

func (l *Lane) backfillSinceLocked(since string) types.QueueBackfill {
	var journal []types.QueueEvent
	if since == "" {
		journal = make([]types.QueueEvent, len(l.journal))
		copy(journal, l.journal)
	} else {
		for _, ev := range l.journal {
			if ev.Cursor > since {
				journal = append(journal, ev)
			}
		}
	}
	cur := since
	if len(l.journal) > 0 {
		cur = l.journal[len(l.journal)-1].Cursor
	}
	return types.QueueBackfill{
		Lane:    l.name,
		Cursor:  cur,
		Pending: l.pendingLocked(),
		Journal: journal,
	}
}

// Ledger owns all three per-session lanes (spec §4.4).
type Ledger struct {
	lanes map[types.QueueLane]*Lane
}

// NewLedger creates a ledger with the three fixed lanes (spec §3).
func NewLedger() *Ledger {
	l := &Ledger{lanes: make(map[types.QueueLane]*Lane, len(types.AllLanes))}
	for _, name := range types.AllLanes {
		l.lanes[name] = NewLane(name)
	}
	return l
}

// Lane returns the named lane, or nil if it is not one of the three fixed
// lanes.
func (l *Ledger) Lane(name types.QueueLane) *Lane {
	return l.lanes[name]
}

// Backfill snapshots all three lanes from the start of their journals.
// Actor.Snapshot does not use it; it calls Lane.BackfillSince per lane.
func (l *Ledger) Backfill() map[types.QueueLane]types.QueueBackfill {
	out := make(map[types.QueueLane]types.QueueBackfill, len(l.lanes))
	for name, lane := range l.lanes {
		out[name] = lane.Backfill()
	}
	return out
}
