package transport

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
	"github.com/wuhu-labs/wuhu/internal/session"
	"github.com/wuhu-labs/wuhu/internal/storage"
	"github.com/wuhu-labs/wuhu/internal/tool"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *eventhub.Hub, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "entries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := eventhub.New()
	t.Cleanup(func() { hub.Close() })

	providers := provider.NewRegistry("mock/mock-model")
	providers.Register(provider.NewMockProvider("mock", []provider.ModelInfo{{ID: "mock-model", ContextWindowTokens: 200000}}))

	deps := session.Deps{
		Store:     store,
		Hub:       hub,
		Providers: providers,
		Tools:     tool.NewRegistry(),
		Retry:     retry.Options{MaxRetries: 0, Initial: time.Millisecond, MaxBackoff: time.Millisecond, JitterFraction: 0},
		Compactor: config.CompactionConfig{Enabled: false},
	}
	mgr := session.NewManager(deps)

	_, err = store.CreateSession(context.Background(), storage.CreateSessionParams{
		ID:           "sess-1",
		Provider:     "mock",
		Model:        "mock-model",
		SystemPrompt: "You are a test agent.",
		Environment:  types.Environment{Name: "default", Kind: types.EnvironmentLocal, Path: "/workspace"},
		Type:         types.SessionTypeCoding,
	})
	require.NoError(t, err)

	srv := New(Config{EnableCORS: false}, mgr, hub)
	return srv, hub, store
}
