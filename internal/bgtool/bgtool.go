// Package bgtool is the Async Background Tool Registry (spec §4.10): a
// separately-owned registry that launches long-running shell commands and
// publishes a completion event once each finishes. It is an external
// collaborator, not part of the core session runtime — internal/session
// never imports it. The only integration point back into the core is the
// Completion Router (router.go), which steers a session's steer lane with
// a background job's truncated output once it completes.
//
// Grounded on internal/event/bus.go (the same ThreeDotsLabs/watermill
// gochannel fan-out internal/eventhub already uses, reused here for a
// second, independent pub/sub keyed by owner rather than session id) and
// internal/lsp/client.go's spawnServer (the os/exec.CommandContext +
// StdoutPipe/StderrPipe process-launching shape, minus the JSON-RPC
// framing, since a background tool's stdout/stderr are just captured to
// files rather than parsed as a protocol).
package bgtool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/wuhu-labs/wuhu/internal/logging"
)

// StartedEvent is emitted synchronously by Launch once the process spawns
// (spec §4.10: "launches long-running shell commands producing
// started{id, pid, started_at, stdout_file, stderr_file}").
type StartedEvent struct {
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	StdoutFile string    `json:"stdout_file"`
	StderrFile string    `json:"stderr_file"`
}

// CompletionEvent is published once a background job's process exits (spec
// §4.10).
type CompletionEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session"`
	Owner      string    `json:"owner"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMS int64     `json:"duration_ms"`
	ExitCode   int       `json:"exit_code"`
	TimedOut   bool      `json:"timed_out"`
	StdoutFile string    `json:"stdout_file"`
	StderrFile string    `json:"stderr_file"`
}

// job tracks one launched process.
type job struct {
	id         string
	sessionID  string
	owner      string
	cmd        *exec.Cmd
	stdoutFile string
	stderrFile string
	startedAt  time.Time
}

func ownerTopic(owner string) string { return "bgtool.owner." + owner }

// Registry owns every in-flight background job. One Registry is shared by
// the whole process (spec §9: no singletons implied, the caller owns
// exactly one).
type Registry struct {
	pubsub *gochannel.GoChannel

	mu   sync.Mutex
	jobs map[string]*job
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256, Persistent: false}, watermill.NopLogger{}),
		jobs:   make(map[string]*job),
	}
}

// Close shuts down the registry's pub/sub. It does not kill running jobs;
// callers that need that should cancel the context passed to Launch.
func (r *Registry) Close() error {
	return r.pubsub.Close()
}

// Launch starts command in workDir, capturing stdout/stderr to temp files,
// and returns once the process has spawned (spec §4.10's synchronous
// "started" half). A completion event publishes to this job's owner topic
// once the process exits or ctx is canceled/times out, whichever comes
// first. id must be unique per job; callers typically derive it from a
// ULID the same way session/entry/queue-item ids are minted.
func (r *Registry) Launch(ctx context.Context, id, sessionID, owner string, command []string, workDir string) (StartedEvent, error) {
	if len(command) == 0 {
		return StartedEvent{}, fmt.Errorf("bgtool: empty command for job %s", id)
	}

	stdout, err := os.CreateTemp("", "wuhu-bgtool-stdout-*.log")
	if err != nil {
		return StartedEvent{}, fmt.Errorf("bgtool: create stdout file: %w", err)
	}
	stderr, err := os.CreateTemp("", "wuhu-bgtool-stderr-*.log")
	if err != nil {
		stdout.Close()
		return StartedEvent{}, fmt.Errorf("bgtool: create stderr file: %w", err)
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return StartedEvent{}, fmt.Errorf("bgtool: start %s: %w", command[0], err)
	}

	startedAt := time.Now()
	j := &job{
		id:         id,
		sessionID:  sessionID,
		owner:      owner,
		cmd:        cmd,
		stdoutFile: stdout.Name(),
		stderrFile: stderr.Name(),
		startedAt:  startedAt,
	}

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	go r.await(ctx, j, stdout, stderr)

	return StartedEvent{
		ID:         id,
		PID:        cmd.Process.Pid,
		StartedAt:  startedAt,
		StdoutFile: j.stdoutFile,
		StderrFile: j.stderrFile,
	}, nil
}

func (r *Registry) await(ctx context.Context, j *job, stdout, stderr *os.File) {
	defer stdout.Close()
	defer stderr.Close()

	waitErr := j.cmd.Wait()
	endedAt := time.Now()

	r.mu.Lock()
	delete(r.jobs, j.id)
	r.mu.Unlock()

	exitCode := 0
	timedOut := ctx.Err() == context.DeadlineExceeded
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	ev := CompletionEvent{
		ID:         j.id,
		SessionID:  j.sessionID,
		Owner:      j.owner,
		StartedAt:  j.startedAt,
		EndedAt:    endedAt,
		DurationMS: endedAt.Sub(j.startedAt).Milliseconds(),
		ExitCode:   exitCode,
		TimedOut:   timedOut,
		StdoutFile: j.stdoutFile,
		StderrFile: j.stderrFile,
	}
	if err := r.publish(ev); err != nil {
		logging.Error().Err(err).Str("job_id", j.id).Msg("bgtool: publish completion failed")
	}
}

func (r *Registry) publish(ev CompletionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bgtool: marshal completion: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return r.pubsub.Publish(ownerTopic(ev.Owner), msg)
}

// Subscribe opens a raw feed of completion events for owner. The
// Completion Router (router.go) is the normal consumer; exported directly
// for tests and for callers that want completions without the router's
// session-steering side effect.
func (r *Registry) Subscribe(ctx context.Context, owner string) (<-chan CompletionEvent, error) {
	msgs, err := r.pubsub.Subscribe(ctx, ownerTopic(owner))
	if err != nil {
		return nil, fmt.Errorf("bgtool: subscribe owner %s: %w", owner, err)
	}
	out := make(chan CompletionEvent)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev CompletionEvent
			if err := json.Unmarshal(msg.Payload, &ev); err == nil {
				select {
				case out <- ev:
				case <-ctx.Done():
					msg.Ack()
					return
				}
			}
			msg.Ack()
		}
	}()
	return out, nil
}
