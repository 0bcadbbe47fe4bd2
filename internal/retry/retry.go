// Package retry is the Retry Wrapper (spec §4.7): a stream-retrying adapter
// around a single upstream model call.
//
// Grounded on internal/session/loop.go's newRetryBackoff: the same
// cenkalti/backoff/v4 composition (backoff.WithContext(backoff.WithMaxRetries(b,
// MaxRetries), ctx)) and the same sleep-on-NextBackOff loop shape. The
// teacher's backoff.ExponentialBackOff uses a single random jitter fraction;
// spec §4.7 instead requires a deterministic, alternating-sign jitter
// (`min(initial*2^(attempt-1), max)`, then `± jitter` alternating by
// attempt), so the exponential/jitter math is reimplemented in specBackOff
// as a small custom backoff.BackOff, kept pluggable into the same
// WithContext/WithMaxRetries composition the teacher uses.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options configures one Retry Wrapper call (spec §4.7).
type Options struct {
	MaxRetries     int
	Initial        time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64
}

// DefaultOptions mirrors the teacher's loop.go constants (MaxRetries=3,
// RetryInitialInterval=1s, RetryMaxInterval=30s), with a jitter fraction
// matching the teacher's RandomizationFactor of 0.5.
func DefaultOptions() Options {
	return Options{
		MaxRetries:     3,
		Initial:        time.Second,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.5,
	}
}

// specBackOff computes spec §4.7's exact formula: backoff(attempt) =
// min(initial * 2^(attempt-1), max_backoff), ± jitter_fraction of the
// clamped delay, sign alternating per attempt (odd attempts add jitter,
// even attempts subtract it).
type specBackOff struct {
	opts    Options
	attempt int
}

func newSpecBackOff(opts Options) *specBackOff {
	return &specBackOff{opts: opts}
}

func (b *specBackOff) NextBackOff() time.Duration {
	b.attempt++
	base := float64(b.opts.Initial) * math.Pow(2, float64(b.attempt-1))
	if max := float64(b.opts.MaxBackoff); base > max {
		base = max
	}
	jitter := base * b.opts.JitterFraction
	if b.attempt%2 == 1 {
		base += jitter
	} else {
		base -= jitter
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func (b *specBackOff) Reset() {
	b.attempt = 0
}

// RetryInfo describes one retry/give-up occurrence, enough to populate a
// wuhu_llm_retry_v1/wuhu_llm_give_up_v1 custom payload (spec §4.7).
type RetryInfo struct {
	Purpose    string
	RetryIndex int
	MaxRetries int
	Backoff    time.Duration
	Err        error
}

// Hooks lets the caller journal retry/give-up occurrences. Implementations
// must be best-effort: spec §4.7 requires that "logging must not fail the
// turn," so Hooks methods should swallow their own errors.
type Hooks interface {
	OnRetry(ctx context.Context, info RetryInfo)
	OnGiveUp(ctx context.Context, info RetryInfo)
}

// NoopHooks implements Hooks by doing nothing.
type NoopHooks struct{}

func (NoopHooks) OnRetry(context.Context, RetryInfo)  {}
func (NoopHooks) OnGiveUp(context.Context, RetryInfo) {}

// AttemptFunc makes one upstream call. yieldedAnyEvent must be true if the
// attempt streamed at least one assistant event before failing — spec §4.7:
// "If any event has already been yielded, the failure is not retried."
type AttemptFunc func(ctx context.Context) (yieldedAnyEvent bool, err error)

// Do runs attempt, retrying failures that occurred before any event was
// yielded, up to opts.MaxRetries times with the spec's backoff formula.
// purpose labels the call for journaling (e.g. "assistant_turn").
func Do(ctx context.Context, purpose string, opts Options, hooks Hooks, attempt AttemptFunc) error {
	if hooks == nil {
		hooks = NoopHooks{}
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(newSpecBackOff(opts), uint64(opts.MaxRetries)), ctx)

	retryIndex := 0
	for {
		yielded, err := attempt(ctx)
		if err == nil {
			return nil
		}
		if yielded {
			// Streams are not restartable mid-assistant.
			return err
		}

		next := bo.NextBackOff()
		if next == backoff.Stop {
			hooks.OnGiveUp(ctx, RetryInfo{Purpose: purpose, RetryIndex: retryIndex, MaxRetries: opts.MaxRetries, Err: err})
			return err
		}

		retryIndex++
		hooks.OnRetry(ctx, RetryInfo{Purpose: purpose, RetryIndex: retryIndex, MaxRetries: opts.MaxRetries, Backoff: next, Err: err})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next):
		}
	}
}
