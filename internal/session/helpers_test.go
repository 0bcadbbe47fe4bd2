package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wuhu-labs/wuhu/internal/config"
	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/provider"
	"github.com/wuhu-labs/wuhu/internal/retry"
	"github.com/wuhu-labs/wuhu/internal/storage"
	"github.com/wuhu-labs/wuhu/internal/tool"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

// newTestDeps builds a Deps wired to a throwaway SQLite-backed Store, a
// fresh Hub, an empty tool Registry, and a provider Registry carrying one
// MockProvider registered under "mock" with model "mock-model". Retry
// options use zero retries so test failures don't sleep through backoff.
func newTestDeps(t *testing.T) Deps {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "entries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := eventhub.New()
	t.Cleanup(func() { hub.Close() })

	providers := provider.NewRegistry("mock/mock-model")
	providers.Register(provider.NewMockProvider("mock", []provider.ModelInfo{{ID: "mock-model", ContextWindowTokens: 200000}}))

	return Deps{
		Store:     store,
		Hub:       hub,
		Providers: providers,
		Tools:     tool.NewRegistry(),
		Retry:     retry.Options{MaxRetries: 0, Initial: time.Millisecond, MaxBackoff: time.Millisecond, JitterFraction: 0},
		Compactor: config.CompactionConfig{Enabled: false},
	}
}

func createTestSession(t *testing.T, deps Deps, id string) *types.Session {
	t.Helper()
	sess, err := deps.Store.CreateSession(context.Background(), storage.CreateSessionParams{
		ID:           id,
		Provider:     "mock",
		Model:        "mock-model",
		SystemPrompt: "You are a test agent.",
		Environment:  types.Environment{Name: "default", Kind: types.EnvironmentLocal, Path: "/workspace"},
		Type:         types.SessionTypeCoding,
	})
	require.NoError(t, err)
	return sess
}

// waitForIdle polls the actor's status until it settles idle (or stopped),
// since runTurn executes on its own goroutine.
func waitForIdle(t *testing.T, a *Actor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := a.Status()
		if st == types.SessionStatusIdle || st == types.SessionStatusStopped {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("actor did not settle idle, stuck at %s", a.Status())
}
