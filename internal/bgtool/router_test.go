package bgtool

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wuhu-labs/wuhu/internal/truncate"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

type fakeSteerer struct {
	mu      sync.Mutex
	steered []string
}

func (f *fakeSteerer) EnqueueUser(ctx context.Context, itemID, input string, lane types.QueueLane) (types.QueueEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steered = append(f.steered, input)
	return types.QueueEvent{ItemID: itemID, Lane: lane, Kind: types.QueueEventEnqueued}, nil
}

func (f *fakeSteerer) inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.steered))
	copy(out, f.steered)
	return out
}

func TestRouterSteersMatchingSessionWithTruncatedStdout(t *testing.T) {
	reg := New()
	t.Cleanup(func() { reg.Close() })

	stdout, err := os.CreateTemp("", "router-test-stdout-*.log")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(stdout.Name()) })
	_, err = stdout.WriteString("build succeeded\n")
	require.NoError(t, err)
	stdout.Close()

	steerer := &fakeSteerer{}
	lookup := func(ctx context.Context, sessionID string) (Steerer, error) {
		require.Equal(t, "sess-1", sessionID)
		return steerer, nil
	}

	router := NewRouter(reg, "owner-1", lookup, truncate.Limits{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	// Give the router's Subscribe a moment to attach before publishing.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, reg.publish(CompletionEvent{
		ID: "job-1", SessionID: "sess-1", Owner: "owner-1",
		ExitCode: 0, StdoutFile: stdout.Name(),
	}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(steerer.inputs()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	inputs := steerer.inputs()
	require.Len(t, inputs, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(inputs[0]), &payload))
	require.Equal(t, "job-1", payload["job_id"])
	require.Contains(t, payload["stdout"], "build succeeded")
}

func TestRouterSkipsCompletionsWithNoSessionID(t *testing.T) {
	reg := New()
	t.Cleanup(func() { reg.Close() })

	steerer := &fakeSteerer{}
	lookup := func(ctx context.Context, sessionID string) (Steerer, error) {
		return steerer, nil
	}
	router := NewRouter(reg, "owner-2", lookup, truncate.DefaultLimits)
	router.handle(context.Background(), CompletionEvent{ID: "job-1", SessionID: ""})

	require.Empty(t, steerer.inputs())
}
