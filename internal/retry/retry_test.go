package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingHooks struct {
	retries []RetryInfo
	giveUps []RetryInfo
}

func (h *recordingHooks) OnRetry(_ context.Context, info RetryInfo)  { h.retries = append(h.retries, info) }
func (h *recordingHooks) OnGiveUp(_ context.Context, info RetryInfo) { h.giveUps = append(h.giveUps, info) }

func fastOptions() Options {
	return Options{MaxRetries: 3, Initial: time.Millisecond, MaxBackoff: 4 * time.Millisecond, JitterFraction: 0.5}
}

func TestDoSucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	hooks := &recordingHooks{}
	calls := 0
	err := Do(context.Background(), "turn", fastOptions(), hooks, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, hooks.retries)
}

func TestDoRetriesFailuresBeforeAnyEventYielded(t *testing.T) {
	hooks := &recordingHooks{}
	calls := 0
	err := Do(context.Background(), "turn", fastOptions(), hooks, func(ctx context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, errors.New("upstream hiccup")
		}
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Len(t, hooks.retries, 2)
	require.Equal(t, 1, hooks.retries[0].RetryIndex)
	require.Equal(t, 2, hooks.retries[1].RetryIndex)
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	hooks := &recordingHooks{}
	calls := 0
	wantErr := errors.New("persistent failure")
	err := Do(context.Background(), "turn", fastOptions(), hooks, func(ctx context.Context) (bool, error) {
		calls++
		return false, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Len(t, hooks.giveUps, 1)
	require.Equal(t, 3, calls-1) // 1 initial + 3 retries = 4 calls total
}

func TestDoDoesNotRetryOnceAnEventWasYielded(t *testing.T) {
	hooks := &recordingHooks{}
	calls := 0
	wantErr := errors.New("mid-stream failure")
	err := Do(context.Background(), "turn", fastOptions(), hooks, func(ctx context.Context) (bool, error) {
		calls++
		return true, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, calls)
	require.Empty(t, hooks.retries)
	require.Empty(t, hooks.giveUps)
}

func TestSpecBackOffClampsAndAlternatesJitterSign(t *testing.T) {
	opts := Options{MaxRetries: 10, Initial: 10 * time.Millisecond, MaxBackoff: 100 * time.Millisecond, JitterFraction: 0.5}
	b := newSpecBackOff(opts)

	first := b.NextBackOff()  // base 10ms, attempt 1 (odd) => +jitter => 15ms
	require.Equal(t, 15*time.Millisecond, first)

	second := b.NextBackOff() // base 20ms, attempt 2 (even) => -jitter => 10ms
	require.Equal(t, 10*time.Millisecond, second)

	for i := 0; i < 10; i++ {
		b.NextBackOff()
	}
	clamped := b.NextBackOff()
	require.LessOrEqual(t, clamped, 150*time.Millisecond) // max + jitter headroom
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, "turn", fastOptions(), nil, func(ctx context.Context) (bool, error) {
		return false, errors.New("boom")
	})
	require.Error(t, err)
}
