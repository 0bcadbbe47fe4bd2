package bgtool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/wuhu-labs/wuhu/internal/logging"
	"github.com/wuhu-labs/wuhu/internal/truncate"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

// Steerer is the slice of Session Actor behavior the Completion Router
// needs: enough to enqueue a steer-lane message, nothing more. Satisfied by
// *internal/session.Actor. Kept as a narrow interface here (rather than
// importing internal/session directly) so bgtool stays a leaf collaborator
// the core never has to know about, matching spec §4.10: "this is the only
// reason the core must integrate with the async registry; otherwise it is
// an external collaborator."
type Steerer interface {
	EnqueueUser(ctx context.Context, itemID, input string, lane types.QueueLane) (types.QueueEvent, error)
}

// SessionLookup resolves a session id to its Steerer, starting the actor if
// it is not already running. Satisfied by *internal/session.Manager's
// EnsureStarted.
type SessionLookup func(ctx context.Context, sessionID string) (Steerer, error)

// Router is the Completion Router (spec §4.10): it subscribes to
// completions for one owner/instance id and, for any completion whose
// session_id matches an active session, persists a synthetic user message
// carrying the job's truncated stdout and steers the session with it.
//
// The spec's "weak references to the owning service from long-lived
// background routers avoid retain cycles" note does not translate to Go:
// the garbage collector reclaims reference cycles, so Router holds an
// ordinary strong reference to its SessionLookup (see DESIGN.md).
type Router struct {
	registry *Registry
	owner    string
	lookup   SessionLookup
	limits   truncate.Limits
}

// NewRouter creates a Completion Router for one owner, resolving sessions
// via lookup. limits defaults to truncate.DefaultLimits when zero.
func NewRouter(registry *Registry, owner string, lookup SessionLookup, limits truncate.Limits) *Router {
	if limits == (truncate.Limits{}) {
		limits = truncate.DefaultLimits
	}
	return &Router{registry: registry, owner: owner, lookup: lookup, limits: limits}
}

// Run subscribes to this router's owner topic and steers matching sessions
// until ctx is canceled. Intended to run in its own goroutine for the
// lifetime of the process (spec §9).
func (r *Router) Run(ctx context.Context) error {
	completions, err := r.registry.Subscribe(ctx, r.owner)
	if err != nil {
		return fmt.Errorf("bgtool: router subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-completions:
			if !ok {
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Router) handle(ctx context.Context, ev CompletionEvent) {
	if ev.SessionID == "" {
		return
	}
	sess, err := r.lookup(ctx, ev.SessionID)
	if err != nil {
		logging.Warn().Err(err).Str("session_id", ev.SessionID).Str("job_id", ev.ID).Msg("bgtool: completion router: session not active")
		return
	}

	payload, err := r.renderPayload(ev)
	if err != nil {
		logging.Error().Err(err).Str("job_id", ev.ID).Msg("bgtool: completion router: render payload")
		return
	}

	itemID := "bgtool-" + ev.ID
	if _, err := sess.EnqueueUser(ctx, itemID, payload, types.LaneSteer); err != nil {
		logging.Error().Err(err).Str("session_id", ev.SessionID).Str("job_id", ev.ID).Msg("bgtool: completion router: steer failed")
	}
}

// renderPayload builds the JSON object carrying the completion's truncated
// stdout (spec §4.10: "a synthetic user message containing a JSON object
// that carries the standard output, truncated under the same policy as
// bash").
func (r *Router) renderPayload(ev CompletionEvent) (string, error) {
	raw, err := os.ReadFile(ev.StdoutFile)
	if err != nil {
		return "", fmt.Errorf("bgtool: read stdout file: %w", err)
	}
	result := truncate.Tail(string(raw), r.limits)

	out := struct {
		JobID      string `json:"job_id"`
		ExitCode   int    `json:"exit_code"`
		TimedOut   bool   `json:"timed_out"`
		DurationMS int64  `json:"duration_ms"`
		Stdout     string `json:"stdout"`
		Trailer    string `json:"trailer,omitempty"`
	}{
		JobID:      ev.ID,
		ExitCode:   ev.ExitCode,
		TimedOut:   ev.TimedOut,
		DurationMS: ev.DurationMS,
		Stdout:     result.Output,
	}
	if result.TruncatedBy != truncate.NotTruncated {
		out.Trailer = truncate.Trailer(result, 0)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
