package eventhub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	h := New()
	defer h.Close()

	sub, err := h.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.Publish(Event{Kind: KindIdle, SessionID: "sess-1"}))

	select {
	case ev := <-sub.Events:
		require.Equal(t, KindIdle, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscriptionsAreKeyedBySession(t *testing.T) {
	h := New()
	defer h.Close()

	subA, err := h.Subscribe(context.Background(), "sess-a", 0)
	require.NoError(t, err)
	defer subA.Close()
	subB, err := h.Subscribe(context.Background(), "sess-b", 0)
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, h.Publish(Event{Kind: KindIdle, SessionID: "sess-a"}))

	select {
	case ev := <-subA.Events:
		require.Equal(t, "sess-a", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sess-a event")
	}

	select {
	case ev := <-subB.Events:
		t.Fatalf("sess-b subscriber unexpectedly received event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishRejectsDoneKind(t *testing.T) {
	h := New()
	defer h.Close()
	err := h.Publish(Event{Kind: KindDone, SessionID: "sess-1"})
	require.Error(t, err)
}

func TestBackpressureDropsOldestAndCountsDropped(t *testing.T) {
	h := New()
	defer h.Close()

	sub, err := h.Subscribe(context.Background(), "sess-1", 2)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, h.Publish(Event{Kind: KindAssistantTextDelta, SessionID: "sess-1", Data: i}))
	}

	// Give the forwarding goroutine time to drain the watermill channel into
	// the bounded subscription buffer.
	require.Eventually(t, func() bool {
		return sub.Dropped() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestCloseStopsDelivery(t *testing.T) {
	h := New()
	defer h.Close()

	sub, err := h.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	sub.Close()

	require.NoError(t, h.Publish(Event{Kind: KindIdle, SessionID: "sess-1"}))

	select {
	case _, ok := <-sub.Events:
		require.False(t, ok, "channel should be closed after Close")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
