package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/queue"
	"github.com/wuhu-labs/wuhu/internal/storage"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

// Actor is one session's serialized command interface and run state (spec
// §4.2). Its mutex guards only the small bits of state callers observe or
// mutate synchronously (status, settings, tool-call status, the pending
// model selection, the materialize waiters and the successive-compaction
// counter; the Queue Ledger's lanes do their own locking); the turn itself runs in its own
// goroutine so that EnqueueUser/CancelUser/EnqueueSystem and friends never
// block on a turn's model/tool I/O.
type Actor struct {
	id   string
	deps Deps

	mu                 sync.Mutex
	status             types.SessionStatus
	settings           types.SessionSettings
	pendingSettings    *types.SessionSettings
	toolCallStatus     map[string]types.ToolCallStatus
	materializeWaiters map[string]chan *types.Entry
	successiveCompactions int

	lanes     *queue.Ledger
	runCancel context.CancelFunc
	turnDone  chan struct{}
}

func newActor(id string, sess *types.Session, deps Deps) *Actor {
	return &Actor{
		id:   id,
		deps: deps,
		status: types.SessionStatusIdle,
		settings: types.SessionSettings{
			Provider:        sess.Provider,
			Model:           sess.Model,
			ReasoningEffort: sess.ReasoningEffort,
		},
		toolCallStatus:     make(map[string]types.ToolCallStatus),
		materializeWaiters: make(map[string]chan *types.Entry),
		lanes:              queue.NewLedger(),
	}
}

// ID returns the session id this actor serializes commands for.
func (a *Actor) ID() string { return a.id }

// Status returns the actor's current run state.
func (a *Actor) Status() types.SessionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Settings returns the actor's currently-committed provider/model settings.
func (a *Actor) Settings() types.SessionSettings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Lanes exposes the Queue Ledger, e.g. for transport-layer backfill
// responses (spec §6).
func (a *Actor) Lanes() *queue.Ledger { return a.lanes }

func (a *Actor) publish(ev eventhub.Event) {
	if a.deps.Hub == nil {
		return
	}
	// Best-effort: spec §7/§4.7 requires that event publishing never poison
	// a turn, so a hub error here is swallowed.
	_ = a.deps.Hub.Publish(ev)
}

func (a *Actor) publishQueueEvent(ev types.QueueEvent) {
	kind := eventhub.KindUserQueue
	if ev.Lane == types.LaneSystemUrgent {
		kind = eventhub.KindSystemUrgentQueue
	}
	a.publish(eventhub.Event{
		Kind:      kind,
		SessionID: a.id,
		Data:      eventhub.QueueDelta{Cursor: ev.Cursor, Entries: []types.QueueEvent{ev}},
	})
}

func (a *Actor) publishStatus() {
	a.publish(eventhub.Event{Kind: eventhub.KindStatusUpdated, SessionID: a.id, Data: a.Status()})
}

// EnqueueUser journals a steer or follow_up item (spec §4.2's enqueue_user)
// and starts a turn if the actor is currently idle.
func (a *Actor) EnqueueUser(ctx context.Context, itemID, input string, lane types.QueueLane) (types.QueueEvent, error) {
	if lane != types.LaneSteer && lane != types.LaneFollowUp {
		return types.QueueEvent{}, fmt.Errorf("session: enqueue_user lane must be steer or follow_up, got %q", lane)
	}
	ev, err := a.lanes.Lane(lane).Enqueue(itemID, input, time.Now().UnixNano())
	if err != nil {
		return types.QueueEvent{}, err
	}
	a.publishQueueEvent(ev)
	a.maybeStartTurn()
	return ev, nil
}

// CancelUser journals a cancel event for a previously enqueued item (spec
// §4.2's cancel_user). A no-op cancel (item already materialized) is still
// journaled by the Lane itself.
func (a *Actor) CancelUser(itemID string, lane types.QueueLane) (types.QueueEvent, error) {
	ev, err := a.lanes.Lane(lane).Cancel(itemID, time.Now().UnixNano())
	if err != nil {
		return types.QueueEvent{}, err
	}
	a.publishQueueEvent(ev)
	return ev, nil
}

// EnqueueSystem journals a system_urgent item (spec §4.2's enqueue_system)
// and starts a turn if the actor is idle.
func (a *Actor) EnqueueSystem(ctx context.Context, itemID, input string) (types.QueueEvent, error) {
	ev, err := a.lanes.Lane(types.LaneSystemUrgent).Enqueue(itemID, input, time.Now().UnixNano())
	if err != nil {
		return types.QueueEvent{}, err
	}
	a.publishQueueEvent(ev)
	a.maybeStartTurn()
	return ev, nil
}

// PromptFollowUp enqueues input onto the follow_up lane and blocks until it
// is materialized into a transcript entry, returning that entry (spec
// §4.2's prompt_follow_up: a convenience that waits for its own
// materialization rather than returning immediately like EnqueueUser).
func (a *Actor) PromptFollowUp(ctx context.Context, itemID, input string) (*types.Entry, error) {
	wait := make(chan *types.Entry, 1)
	a.mu.Lock()
	a.materializeWaiters[itemID] = wait
	a.mu.Unlock()

	if _, err := a.EnqueueUser(ctx, itemID, input, types.LaneFollowUp); err != nil {
		a.mu.Lock()
		delete(a.materializeWaiters, itemID)
		a.mu.Unlock()
		return nil, err
	}

	select {
	case entry := <-wait:
		return entry, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Actor) notifyMaterialized(itemID string, entry *types.Entry) {
	a.mu.Lock()
	ch, ok := a.materializeWaiters[itemID]
	if ok {
		delete(a.materializeWaiters, itemID)
	}
	a.mu.Unlock()
	if ok {
		ch <- entry
	}
}

// hasOutstandingToolCallsLocked reports whether any tool call is
// pending/started — a model selection cannot apply mid-tool-call (spec
// §4.2's pending-model-selection rule). Callers must hold a.mu.
func (a *Actor) hasOutstandingToolCallsLocked() bool {
	for _, st := range a.toolCallStatus {
		if st == types.ToolCallPending || st == types.ToolCallStarted {
			return true
		}
	}
	return false
}

// SetPendingModelSelection stashes settings to be applied at the next idle
// transition with no outstanding tool calls (spec §4.2's
// set_pending_model_selection).
func (a *Actor) SetPendingModelSelection(settings types.SessionSettings) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingSettings = &settings
}

// ApplyModelSelection commits settings immediately if the actor is idle
// with no outstanding tool calls; otherwise it defers via
// SetPendingModelSelection (spec §4.2's apply_model_selection).
func (a *Actor) ApplyModelSelection(ctx context.Context, settings types.SessionSettings) error {
	a.mu.Lock()
	blocked := a.status == types.SessionStatusRunning || a.hasOutstandingToolCallsLocked()
	a.mu.Unlock()
	if blocked {
		a.SetPendingModelSelection(settings)
		return nil
	}
	return a.commitSettings(ctx, settings)
}

// ApplyPendingModelIfPossible commits a previously stashed pending
// selection if the actor is now idle with no outstanding tool calls (spec
// §4.2's apply_pending_model_if_possible). A no-op if nothing is pending or
// the actor is still blocked.
func (a *Actor) ApplyPendingModelIfPossible(ctx context.Context) error {
	a.mu.Lock()
	pending := a.pendingSettings
	blocked := a.status == types.SessionStatusRunning || a.hasOutstandingToolCallsLocked()
	a.mu.Unlock()
	if pending == nil || blocked {
		return nil
	}
	if err := a.commitSettings(ctx, *pending); err != nil {
		return err
	}
	a.mu.Lock()
	if a.pendingSettings != nil && *a.pendingSettings == *pending {
		a.pendingSettings = nil
	}
	a.mu.Unlock()
	return nil
}

func (a *Actor) commitSettings(ctx context.Context, settings types.SessionSettings) error {
	if _, err := a.deps.Store.AppendEntry(ctx, a.id, types.SessionSettingsPayloadOf(settings)); err != nil {
		return fmt.Errorf("session: commit settings: %w", err)
	}
	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()
	a.publish(eventhub.Event{Kind: eventhub.KindSettingsUpdated, SessionID: a.id, Data: settings})
	return nil
}

// Stop cancels an in-flight turn, if any, and waits for it to unwind,
// leaving the actor in SessionStatusStopped.
func (a *Actor) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.runCancel
	done := a.turnDone
	a.mu.Unlock()

	if cancel == nil {
		a.mu.Lock()
		a.status = types.SessionStatusStopped
		a.mu.Unlock()
		a.publishStatus()
		return nil
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// maybeStartTurn spawns runTurn in a new goroutine if the actor is idle.
// Called after any command that adds work to a lane.
func (a *Actor) maybeStartTurn() {
	a.mu.Lock()
	if a.status != types.SessionStatusIdle {
		a.mu.Unlock()
		return
	}
	turnCtx, cancel := context.WithCancel(context.Background())
	a.status = types.SessionStatusRunning
	a.runCancel = cancel
	done := make(chan struct{})
	a.turnDone = done
	a.mu.Unlock()

	a.publishStatus()
	go func() {
		defer close(done)
		a.runTurn(turnCtx)
	}()
}

// Snapshot builds the initial state a new Live Event Hub subscriber sees
// (spec §4.9 "Initial"), combining a transcript page from the Entry Store
// with the in-memory queue backfill and settings/status.
func (a *Actor) Snapshot(ctx context.Context, opts eventhub.SubscribeOptions) (eventhub.Snapshot, error) {
	getOpts := storage.GetEntriesOptions{}
	if opts.TranscriptSince != nil {
		getOpts.SinceCursor = opts.TranscriptSince
	}
	entries, err := a.deps.Store.GetEntries(ctx, a.id, getOpts)
	if err != nil {
		return eventhub.Snapshot{}, fmt.Errorf("session: snapshot: %w", err)
	}

	hasMore := false
	if opts.TranscriptPageSize > 0 && len(entries) > opts.TranscriptPageSize {
		entries = entries[len(entries)-opts.TranscriptPageSize:]
		hasMore = true
	}

	laneSince := map[types.QueueLane]string{
		types.LaneSystemUrgent: opts.SystemSince,
		types.LaneSteer:        opts.SteerSince,
		types.LaneFollowUp:     opts.FollowUpSince,
	}
	lanes := make(map[types.QueueLane]types.QueueBackfill, len(types.AllLanes))
	for _, name := range types.AllLanes {
		lanes[name] = a.lanes.Lane(name).BackfillSince(laneSince[name])
	}

	return eventhub.Snapshot{
		Transcript:        entries,
		TranscriptHasMore: hasMore,
		Lanes:             lanes,
		Settings:          a.Settings(),
		Status:            a.Status(),
	}, nil
}
