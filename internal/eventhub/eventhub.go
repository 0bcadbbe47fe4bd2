// Package eventhub is the Live Event Hub (spec §4.9): an in-process,
// multi-consumer broadcaster keyed by session id, with bounded per-
// subscription backpressure and cursor-based resume.
//
// Grounded on internal/event/bus.go: a ThreeDotsLabs/watermill
// gochannel.GoChannel carries the actual fan-out, the same infrastructure
// the teacher's bus uses "for potential future middleware/routing" while
// keeping direct subscriber semantics. Unlike the teacher's single global,
// type-keyed bus, this hub is keyed per session (one topic per session id)
// and each subscription is wrapped in a fixed-size ring buffer that drops
// the oldest buffered event on overflow (spec §4.9 "Backpressure") — the
// teacher's bus has no such concept, since it never needed replay/resume.
package eventhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

// Kind discriminates a hub event (spec §4.9).
type Kind string

const (
	KindEntryAppended       Kind = "entry_appended"
	KindAssistantTextDelta  Kind = "assistant_text_delta"
	KindStreamBegan         Kind = "stream_began"
	KindStreamDelta         Kind = "stream_delta"
	KindStreamEnded         Kind = "stream_ended"
	KindTranscriptAppended  Kind = "transcript_appended"
	KindSystemUrgentQueue   Kind = "system_urgent_queue"
	KindUserQueue           Kind = "user_queue"
	KindSettingsUpdated     Kind = "settings_updated"
	KindStatusUpdated       Kind = "status_updated"
	KindIdle                Kind = "idle"
	// KindDone marks the end of a single model-call stream (spec §4.9: "done
	// is end-of-per-call-stream; never published hub-wide"). Publish rejects
	// it; it is only meaningful as a local return value to a stream caller.
	KindDone Kind = "done"
)

// Event is one hub-delivered occurrence for a session (spec §4.9).
type Event struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"session_id"`
	Data      any    `json:"data,omitempty"`
}

// QueueDelta is the payload of a system_urgent_queue/user_queue event.
type QueueDelta struct {
	Cursor  string            `json:"cursor"`
	Entries []types.QueueEvent `json:"entries"`
}

// Snapshot is the initial state handed to a new subscriber before live
// events start flowing (spec §4.9 "Initial"). Building one requires the
// Entry Store and Queue Ledger, so the hub only defines the shape; a
// Session Actor (internal/session) is responsible for populating it.
type Snapshot struct {
	Transcript         []*types.Entry                    `json:"transcript"`
	TranscriptHasMore  bool                               `json:"transcript_has_more"`
	Lanes              map[types.QueueLane]types.QueueBackfill `json:"lanes"`
	Settings           types.SessionSettings              `json:"settings"`
	Status             types.SessionStatus                `json:"status"`
	InFlightText       string                              `json:"in_flight_text,omitempty"`
}

// SubscribeOptions are the resume cursors a client supplies (spec §4.9
// "Subscription contract").
type SubscribeOptions struct {
	TranscriptSince    *int64
	TranscriptPageSize int
	SystemSince        string
	SteerSince         string
	FollowUpSince      string
}

const defaultBufferSize = 4096

func topic(sessionID string) string { return "session." + sessionID }

// Hub is the process-wide broadcaster. Create one per process (spec §9).
type Hub struct {
	pubsub *gochannel.GoChannel
	mu     sync.Mutex
	closed bool
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: defaultBufferSize, Persistent: false},
			watermill.NopLogger{},
		),
	}
}

// Close shuts the hub down; all subscriptions observe a closed channel.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.pubsub.Close()
}

// Publish fans ev out to every current subscriber of ev.SessionID.
// KindDone is rejected: it is never published hub-wide (spec §4.9).
func (h *Hub) Publish(ev Event) error {
	if ev.Kind == KindDone {
		return fmt.Errorf("eventhub: %q is per-call only, not published hub-wide", KindDone)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventhub: marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return h.pubsub.Publish(topic(ev.SessionID), msg)
}

// Subscription is one consumer's bounded view of a session's live events.
type Subscription struct {
	Events <-chan Event

	dropped uint64
	cancel  context.CancelFunc
}

// Dropped returns how many buffered events have been overwritten due to
// backpressure since subscribing (spec §4.9: "older events are dropped").
// A nonzero value means the subscriber must reissue a subscription with its
// last observed cursors to recover.
func (s *Subscription) Dropped() uint64 {
	return s.dropped
}

// Close stops delivery and releases the underlying watermill subscription.
func (s *Subscription) Close() {
	s.cancel()
}

// Subscribe opens a bounded live feed for sessionID. bufferSize<=0 uses the
// spec's suggested default of 4096. Events published before Subscribe
// returns are never delivered to this subscription.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, bufferSize int) (*Subscription, error) {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := h.pubsub.Subscribe(subCtx, topic(sessionID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("eventhub: subscribe %s: %w", sessionID, err)
	}

	out := make(chan Event, bufferSize)
	sub := &Subscription{Events: out, cancel: cancel}

	go func() {
		defer close(out)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(msg.Payload, &ev); err == nil {
					deliverOrDropOldest(out, ev, &sub.dropped)
				}
				msg.Ack()
			}
		}
	}()

	return sub, nil
}

// deliverOrDropOldest implements the ring-buffer backpressure policy: if the
// bounded channel is full, the oldest queued event is discarded to make room
// for ev rather than blocking the publisher.
func deliverOrDropOldest(ch chan Event, ev Event, dropped *uint64) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
		*dropped++
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
