package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/tool"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

// dispatchToolCalls executes every call in calls sequentially, in the order
// the assistant message's tool_call content blocks appeared (spec §4.8:
// "the actor executes tool calls sequentially in the order of the
// assistant message's tool_call blocks"). Grounded on
// internal/session/tools.go's executeToolCalls, minus its batch/parallel
// fallback (internal/tool/batch.go's parallelism was dropped; see
// DESIGN.md).
func (a *Actor) dispatchToolCalls(ctx context.Context, calls []toolCallRef, sessionType string) {
	for _, call := range calls {
		a.dispatchOne(ctx, call, sessionType)
	}
}

func (a *Actor) dispatchOne(ctx context.Context, call toolCallRef, sessionType string) {
	a.mu.Lock()
	a.toolCallStatus[call.ID] = types.ToolCallStarted
	a.mu.Unlock()

	if start, err := a.deps.Store.AppendEntry(ctx, a.id, types.ToolExecutionPayloadOf(types.ToolExecutionPayload{
		Phase:      types.ToolExecutionStart,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Arguments:  call.Arguments,
	})); err == nil {
		a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: a.id, Data: start})
	}

	result, execErr := a.executeTool(ctx, call, sessionType)

	isError := execErr != nil
	var contentBlocks []types.ContentBlock
	var details any
	var outputForBreadcrumb string
	if isError {
		contentBlocks = []types.ContentBlock{types.NewTextBlock(execErr.Error())}
		outputForBreadcrumb = execErr.Error()
	} else {
		contentBlocks = []types.ContentBlock{types.NewTextBlock(result.Output)}
		details = result.Metadata
		outputForBreadcrumb = result.Output
	}

	resultEntry, err := a.deps.Store.AppendEntry(ctx, a.id, types.MessagePayloadOf(
		types.NewToolResultMessage(call.ID, call.Name, contentBlocks, details, isError, time.Now().UnixNano()),
	))
	if err == nil {
		status := types.ToolCallCompleted
		if isError {
			status = types.ToolCallErrored
		}
		a.mu.Lock()
		a.toolCallStatus[call.ID] = status
		a.mu.Unlock()
		a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: a.id, Data: resultEntry})
	}
	// On a store-write failure the call stays Started so repairStaleToolCalls
	// picks it up at the next turn boundary instead of treating it as
	// resolved (spec §8: every tool_call eventually gets a tool_result).

	if end, err := a.deps.Store.AppendEntry(ctx, a.id, types.ToolExecutionPayloadOf(types.ToolExecutionPayload{
		Phase:      types.ToolExecutionEnd,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Arguments:  call.Arguments,
		Result:     ptrIfNonEmpty(outputForBreadcrumb),
		IsError:    isError,
	})); err == nil {
		a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: a.id, Data: end})
	}
}

// executeTool applies the channel restriction policy, looks up the tool,
// validates its arguments, and runs it with an abort channel tied to ctx
// (spec §4.8).
func (a *Actor) executeTool(ctx context.Context, call toolCallRef, sessionType string) (*tool.Result, error) {
	if err := tool.CheckChannelRestriction(call.Name, sessionType); err != nil {
		return nil, err
	}

	t, ok := a.deps.Tools.Get(call.Name)
	if !ok {
		return nil, fmt.Errorf("tool %q is not registered", call.Name)
	}

	args := json.RawMessage(call.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := tool.ValidateArgs(t.Parameters(), args); err != nil {
		return nil, err
	}

	abortCh := make(chan struct{})
	stop := context.AfterFunc(ctx, func() { close(abortCh) })
	defer stop()

	toolCtx := &tool.Context{
		SessionID:   a.id,
		CallID:      call.ID,
		SessionType: sessionType,
		AbortCh:     abortCh,
	}

	result, err := t.Execute(ctx, args, toolCtx)
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, errors.New(result.Output)
	}
	return result, nil
}

// repairStaleToolCalls is the persisted stale-tool-call repair pass (spec
// §4.2's FSM, §4.3 step 5, §3 "observational breadcrumbs"): any tool call the
// actor still tracks as pending/started at a turn boundary never resolved,
// so a synthetic is_error tool_result is appended in its place and the
// in-memory status is marked errored. reason distinguishes an ordinary
// end-of-turn leftover ("lost") from one left dangling by Stop/cancellation
// ("stopped").
func (a *Actor) repairStaleToolCalls(ctx context.Context, reason string) {
	a.mu.Lock()
	var stale []string
	for id, st := range a.toolCallStatus {
		if st == types.ToolCallPending || st == types.ToolCallStarted {
			stale = append(stale, id)
		}
	}
	a.mu.Unlock()
	if len(stale) == 0 {
		return
	}

	for _, id := range stale {
		entry, err := a.deps.Store.AppendEntry(ctx, a.id, types.MessagePayloadOf(
			types.NewToolResultMessage(id, "", []types.ContentBlock{types.NewTextBlock("tool call lost before completion")},
				map[string]any{"wuhu_repair": "stale_tool_call", "reason": reason}, true, time.Now().UnixNano()),
		))
		if err != nil {
			continue
		}
		a.mu.Lock()
		a.toolCallStatus[id] = types.ToolCallErrored
		a.mu.Unlock()
		a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: a.id, Data: entry})
	}
}
