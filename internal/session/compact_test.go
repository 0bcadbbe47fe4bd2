package session

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/wuhu-labs/wuhu/internal/provider"
	"github.com/wuhu-labs/wuhu/internal/storage"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

func appendUserEntry(t *testing.T, deps Deps, sessionID, text string) {
	t.Helper()
	_, err := deps.Store.AppendEntry(context.Background(), sessionID, types.MessagePayloadOf(
		types.NewUserMessage("alice", []types.ContentBlock{types.NewTextBlock(text)}, 1)))
	require.NoError(t, err)
}

func TestShouldCompactFalseWhenDisabled(t *testing.T) {
	deps := newTestDeps(t)
	sess := createTestSession(t, deps, "sess-1")
	a := newActor(sess.ID, sess, deps)
	appendUserEntry(t, deps, sess.ID, strings.Repeat("x", 100000))

	require.False(t, a.shouldCompact(context.Background()))
}

func TestShouldCompactTrueWhenOverBudget(t *testing.T) {
	deps := newTestDeps(t)
	deps.Compactor.Enabled = true
	deps.Compactor.ContextWindowTokens = 1000
	deps.Compactor.ReserveTokens = 100
	sess := createTestSession(t, deps, "sess-2")
	a := newActor(sess.ID, sess, deps)
	appendUserEntry(t, deps, sess.ID, strings.Repeat("x", 10000))

	require.True(t, a.shouldCompact(context.Background()))
}

func TestShouldCompactResetsCounterWhenBackUnderBudget(t *testing.T) {
	deps := newTestDeps(t)
	deps.Compactor.Enabled = true
	deps.Compactor.ContextWindowTokens = 1000000
	deps.Compactor.ReserveTokens = 100
	sess := createTestSession(t, deps, "sess-3")
	a := newActor(sess.ID, sess, deps)
	a.successiveCompactions = 2
	appendUserEntry(t, deps, sess.ID, "tiny")

	require.False(t, a.shouldCompact(context.Background()))
	require.Equal(t, 0, a.successiveCompactions)
}

func TestShouldCompactStopsAtMaxSuccessiveCompactions(t *testing.T) {
	deps := newTestDeps(t)
	deps.Compactor.Enabled = true
	deps.Compactor.ContextWindowTokens = 1000
	deps.Compactor.ReserveTokens = 100
	sess := createTestSession(t, deps, "sess-4")
	a := newActor(sess.ID, sess, deps)
	a.successiveCompactions = 3
	appendUserEntry(t, deps, sess.ID, strings.Repeat("x", 10000))

	require.False(t, a.shouldCompact(context.Background()))
}

func TestRunCompactionAppendsCompactionEntry(t *testing.T) {
	deps := newTestDeps(t)
	deps.Compactor.Enabled = true
	deps.Compactor.KeepRecentTokens = 1
	sess := createTestSession(t, deps, "sess-5")
	a := newActor(sess.ID, sess, deps)
	appendUserEntry(t, deps, sess.ID, strings.Repeat("a", 2000))
	appendUserEntry(t, deps, sess.ID, strings.Repeat("b", 2000))
	appendUserEntry(t, deps, sess.ID, "recent")

	mock := deps.Providers.List()[0].(*provider.MockProvider)
	mock.Script = func(req *provider.CompletionRequest) ([]*schema.Message, error) {
		return []*schema.Message{{Role: schema.Assistant, Content: "a tidy summary"}}, nil
	}
	prov, err := deps.Providers.Get("mock")
	require.NoError(t, err)
	model, err := deps.Providers.GetModel("mock", "mock-model")
	require.NoError(t, err)

	a.runCompaction(context.Background(), prov, *model)

	entries, err := deps.Store.GetEntries(context.Background(), sess.ID, storage.GetEntriesOptions{})
	require.NoError(t, err)
	var found *types.CompactionPayload
	for _, e := range entries {
		if e.Payload.Kind == types.PayloadCompaction {
			found = e.Payload.Compaction
		}
	}
	require.NotNil(t, found)
	require.Equal(t, "a tidy summary", found.Summary)
	require.Equal(t, 0, a.successiveCompactions)
}

func TestRunCompactionLeavesCounterIncrementedOnFailure(t *testing.T) {
	deps := newTestDeps(t)
	deps.Compactor.Enabled = true
	sess := createTestSession(t, deps, "sess-6")
	a := newActor(sess.ID, sess, deps)
	appendUserEntry(t, deps, sess.ID, "only one short message, no valid cut point")

	prov, err := deps.Providers.Get("mock")
	require.NoError(t, err)
	model, err := deps.Providers.GetModel("mock", "mock-model")
	require.NoError(t, err)

	a.runCompaction(context.Background(), prov, *model)

	require.Equal(t, 1, a.successiveCompactions)
	entries, err := deps.Store.GetEntries(context.Background(), sess.ID, storage.GetEntriesOptions{})
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, types.PayloadCompaction, e.Payload.Kind)
	}
}
