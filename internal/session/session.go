// Package session implements the Session Actor, the Agent Loop, Context
// Extraction, the Tool Repairer, and sequential Tool Dispatch (spec §4.2,
// §4.3, §4.5, §4.8). It is the one package that wires together every other
// collaborator built so far: internal/storage (the Entry Store),
// internal/queue (the Queue Ledger), internal/eventhub (the Live Event
// Hub), internal/retry (the Retry Wrapper), internal/compaction (the
// Compaction Engine), internal/provider (the model boundary) and
// internal/tool (the tool-dispatch boundary).
//
// Directly grounded on internal/session/{processor,loop,stream,tools}.go:
// the command-queue-with-waiters pattern (Processor.Process), the per-turn
// for{} loop structure (runLoop), stream-chunk accumulation
// (processStream/processMessageChunk), and per-tool-call sequential
// execution (executeToolCalls/executeSingleTool). Unlike the teacher, whose
// Processor serializes an entire turn behind one blocking call, this
// package's Actor must stay reachable for enqueue/cancel/model-selection
// commands while a turn is in flight (spec §4.2's "asynchronous command
// interface"), so the turn itself runs in its own goroutine and lane
// draining happens at step boundaries rather than under a turn-long lock.
package session

import (
	"github.com/wuhu-labs/wuhu/internal/config"
	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/provider"
	"github.com/wuhu-labs/wuhu/internal/retry"
	"github.com/wuhu-labs/wuhu/internal/storage"
	"github.com/wuhu-labs/wuhu/internal/tool"
)

// Deps bundles every collaborator an Actor needs. One Deps is shared by
// every session in the process (spec §9: "no singletons implied" — the
// caller owns exactly one of each and hands them here).
type Deps struct {
	Store     *storage.Store
	Hub       *eventhub.Hub
	Providers *provider.Registry
	Tools     *tool.Registry
	Retry     retry.Options
	Compactor config.CompactionConfig
}

// ptrIfNonEmpty returns nil for an empty string, else a pointer to s — used
// for ToolExecutionPayload.Result, which is optional.
func ptrIfNonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
