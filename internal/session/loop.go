package session

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/provider"
	"github.com/wuhu-labs/wuhu/internal/retry"
	"github.com/wuhu-labs/wuhu/internal/storage"
	"github.com/wuhu-labs/wuhu/internal/tool"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

// MaxSteps bounds one turn's tool-call round trips (spec §4.3: the Agent
// Loop must terminate even if the model keeps requesting tools).
const MaxSteps = 50

// toolCallRef is one fully-accumulated tool call request, ready to
// dispatch.
type toolCallRef struct {
	ID        string
	Name      string
	Arguments string
}

// runTurn is the per-turn algorithm (spec §4.3): drain the priority lanes
// into the transcript at this step boundary, build context, call the
// model, dispatch any requested tools, repair stale tool calls, maybe
// compact, and repeat until the model stops requesting tools and no
// follow-up work remains.
//
// Grounded on internal/session/loop.go's runLoop for{} structure.
func (a *Actor) runTurn(ctx context.Context) {
	defer a.finishTurn(ctx)

	for step := 0; step < MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// spec §4.2/§5: system-urgent drains ahead of steer at every
		// checkpoint between turn steps.
		a.drainLane(ctx, types.LaneSystemUrgent, "system")
		a.drainLane(ctx, types.LaneSteer, "user")

		entries, err := a.deps.Store.GetEntries(ctx, a.id, storage.GetEntriesOptions{})
		if err != nil {
			return
		}

		sess, err := a.deps.Store.GetSession(ctx, a.id)
		if err != nil {
			return
		}

		systemPrompt, messages := buildContext(entries)

		providerID, modelID := a.resolveModel()
		prov, err := a.deps.Providers.Get(providerID)
		if err != nil {
			return
		}
		model, err := a.deps.Providers.GetModel(providerID, modelID)
		if err != nil {
			return
		}

		req := buildCompletionRequest(systemPrompt, messages, providerID, *model, a.Settings(), a.deps.Tools)

		_, toolCalls, callErr := a.callModel(ctx, prov, req, providerID, modelID, string(sess.Type))
		if callErr != nil {
			return
		}

		if len(toolCalls) == 0 {
			if a.drainLane(ctx, types.LaneFollowUp, "user") {
				continue
			}
			return
		}

		a.dispatchToolCalls(ctx, toolCalls, string(sess.Type))
		a.repairStaleToolCalls(ctx, "lost")

		if a.shouldCompact(ctx) {
			a.runCompaction(ctx, prov, *model)
		}
	}

	// Step budget exhausted without the model settling: record it the same
	// way an upstream failure is recorded, so the transcript shows why the
	// turn stopped requesting tools mid-stream.
	msgErr := &types.MessageError{Type: "max_steps", Message: fmt.Sprintf("turn exceeded %d steps", MaxSteps)}
	if entry, err := a.deps.Store.AppendEntry(ctx, a.id, types.MessagePayloadOf(
		types.NewAssistantMessage("", "", nil, nil, "max_steps", msgErr, time.Now().UnixNano()),
	)); err == nil {
		a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: a.id, Data: entry})
	}
}

// finishTurn unwinds runTurn's state on return, whatever the reason: it
// repairs any tool calls left started/pending (spec §4.2's FSM, §4.3 step 5,
// the persisted stale-tool-call repair pass — tagged "stopped" if Stop's
// cancellation caused the unwind, "lost" otherwise), moves the actor back to
// idle (or stopped), applies a pending model selection if one is now
// unblocked, and emits idle.
func (a *Actor) finishTurn(ctx context.Context) {
	turnWasCanceled := false
	select {
	case <-ctx.Done():
		turnWasCanceled = true
	default:
	}

	repairReason := "lost"
	if turnWasCanceled {
		repairReason = "stopped"
	}
	a.repairStaleToolCalls(context.Background(), repairReason)

	a.mu.Lock()
	a.runCancel = nil
	if turnWasCanceled {
		a.status = types.SessionStatusStopped
	} else {
		a.status = types.SessionStatusIdle
	}
	a.mu.Unlock()
	a.publishStatus()

	if turnWasCanceled {
		return
	}
	_ = a.ApplyPendingModelIfPossible(context.Background())
	a.publish(eventhub.Event{Kind: eventhub.KindIdle, SessionID: a.id})
}

// drainLane materializes every pending item in lane as a user-role
// transcript entry, in enqueue order, notifying any PromptFollowUp waiter.
// userTag distinguishes system-urgent injections ("system") from
// ordinary user input ("user") in the persisted message's User field.
// Returns whether anything was drained.
func (a *Actor) drainLane(ctx context.Context, lane types.QueueLane, userTag string) bool {
	l := a.lanes.Lane(lane)
	items := l.Pending()
	for _, item := range items {
		entry, err := a.deps.Store.AppendEntry(ctx, a.id, types.MessagePayloadOf(
			types.NewUserMessage(userTag, []types.ContentBlock{types.NewTextBlock(item.Payload)}, time.Now().UnixNano()),
		))
		if err != nil {
			continue
		}
		if ev, err := l.Materialize(item.ID, entry.ID, time.Now().UnixNano()); err == nil {
			a.publishQueueEvent(ev)
			a.publish(eventhub.Event{Kind: eventhub.KindTranscriptAppended, SessionID: a.id, Data: entry})
			a.notifyMaterialized(item.ID, entry)
		}
	}
	return len(items) > 0
}

// resolveModel returns the actor's committed provider/model, falling back
// to the registry's configured default when either is unset (spec §4.1:
// sessions may be created without an explicit model).
func (a *Actor) resolveModel() (providerID, modelID string) {
	settings := a.Settings()
	if settings.Provider != "" && settings.Model != "" {
		return settings.Provider, settings.Model
	}
	pid, mid, err := a.deps.Providers.DefaultModel()
	if err != nil {
		return settings.Provider, settings.Model
	}
	return pid, mid
}

const defaultMaxTokens = 4096

// buildCompletionRequest composes request options from settings (spec §4.3
// step 2): when the "provider/model" id contains gpt-5 or codex,
// reasoning_effort defaults to "low" unless the session explicitly set one;
// every request carries MaxTokens = defaultMaxTokens whatever its provider,
// and no prompt-caching option is set for any provider (there is no
// Anthropic-specific branch, see DESIGN.md); a non-empty system prompt is
// prepended as a schema.System message.
func buildCompletionRequest(systemPrompt string, messages []*schema.Message, providerID string, model provider.ModelInfo, settings types.SessionSettings, tools *tool.Registry) *provider.CompletionRequest {
	full := make([]*schema.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		full = append(full, &schema.Message{Role: schema.System, Content: systemPrompt})
	}
	full = append(full, messages...)

	effort := ""
	if settings.ReasoningEffort != nil {
		effort = string(*settings.ReasoningEffort)
	}
	idLower := strings.ToLower(providerID + "/" + model.ID)
	if effort == "" && (strings.Contains(idLower, "gpt-5") || strings.Contains(idLower, "codex")) {
		effort = string(types.ReasoningEffortLow)
	}

	maxTokens := defaultMaxTokens

	req := &provider.CompletionRequest{
		Model:           model.ID,
		Messages:        full,
		MaxTokens:       maxTokens,
		Temperature:     1,
		ReasoningEffort: effort,
	}
	if tools != nil {
		req.Tools = tools.ToolInfos()
	}
	return req
}

type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// callModel drives one model call through the Retry Wrapper, accumulating
// the streamed assistant message, persisting it, and returning any
// tool_call content blocks it requested (spec §4.3 steps 3-4). Grounded on
// internal/session/stream.go's processMessageChunk (prefix-or-append text
// delta detection, Index-then-ID tool-call accumulation keying).
func (a *Actor) callModel(ctx context.Context, prov provider.Provider, req *provider.CompletionRequest, providerID, modelID, sessionType string) (*types.Entry, []toolCallRef, error) {
	var (
		accumulatedText string
		contentBlocks   []types.ContentBlock
		calls           []toolCallRef
		usage           *types.TokenUsage
		stopReason      string
	)
	yieldedAny := false

	attemptErr := retry.Do(ctx, "assistant_turn", a.deps.Retry, sessionRetryHooks{a: a}, func(ctx context.Context) (bool, error) {
		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			return yieldedAny, err
		}
		defer stream.Close()

		accumulatedText = ""
		contentBlocks = nil
		calls = nil
		usage = nil
		stopReason = ""

		toolAcc := map[string]*toolCallAccumulator{}
		var toolOrder []string

		for {
			msg, recvErr := stream.Recv()
			if recvErr == io.EOF {
				break
			}
			if recvErr != nil {
				return yieldedAny, recvErr
			}
			yieldedAny = true

			if msg.Content != "" {
				var delta string
				if strings.HasPrefix(msg.Content, accumulatedText) {
					delta = msg.Content[len(accumulatedText):]
					accumulatedText = msg.Content
				} else {
					delta = msg.Content
					accumulatedText += msg.Content
				}
				if delta != "" {
					a.publish(eventhub.Event{Kind: eventhub.KindAssistantTextDelta, SessionID: a.id, Data: delta})
				}
			}

			for _, tc := range msg.ToolCalls {
				key := tc.ID
				if tc.Index != nil {
					key = "idx:" + strconv.Itoa(*tc.Index)
				}
				if key == "" {
					continue
				}
				acc, exists := toolAcc[key]
				if !exists {
					acc = &toolCallAccumulator{id: tc.ID, name: tc.Function.Name}
					toolAcc[key] = acc
					toolOrder = append(toolOrder, key)
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}

			if msg.ResponseMeta != nil {
				if msg.ResponseMeta.Usage != nil {
					usage = &types.TokenUsage{
						Input:  msg.ResponseMeta.Usage.PromptTokens,
						Output: msg.ResponseMeta.Usage.CompletionTokens,
					}
				}
				if msg.ResponseMeta.FinishReason != "" {
					stopReason = msg.ResponseMeta.FinishReason
				}
			}
		}

		if accumulatedText != "" {
			contentBlocks = append(contentBlocks, types.NewTextBlock(accumulatedText))
		}
		for _, key := range toolOrder {
			acc := toolAcc[key]
			contentBlocks = append(contentBlocks, types.NewToolCallBlock(acc.id, acc.name, acc.args.String()))
			calls = append(calls, toolCallRef{ID: acc.id, Name: acc.name, Arguments: acc.args.String()})
		}
		return yieldedAny, nil
	})

	if attemptErr != nil {
		msgErr := &types.MessageError{Type: "api", Message: attemptErr.Error()}
		entry, appendErr := a.deps.Store.AppendEntry(ctx, a.id, types.MessagePayloadOf(
			types.NewAssistantMessage(providerID, modelID, contentBlocks, usage, "error", msgErr, time.Now().UnixNano()),
		))
		if appendErr == nil {
			a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: a.id, Data: entry})
		}
		return nil, nil, attemptErr
	}

	entry, err := a.deps.Store.AppendEntry(ctx, a.id, types.MessagePayloadOf(
		types.NewAssistantMessage(providerID, modelID, contentBlocks, usage, stopReason, nil, time.Now().UnixNano()),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("session: persist assistant message: %w", err)
	}
	a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: a.id, Data: entry})

	a.mu.Lock()
	for _, c := range calls {
		a.toolCallStatus[c.ID] = types.ToolCallPending
	}
	a.mu.Unlock()

	return entry, calls, nil
}

// sessionRetryHooks journals retry/give-up occurrences as custom entries
// (spec §4.7: wuhu_llm_retry_v1/wuhu_llm_give_up_v1).
type sessionRetryHooks struct {
	a *Actor
}

func (h sessionRetryHooks) OnRetry(ctx context.Context, info retry.RetryInfo) {
	entry, err := h.a.deps.Store.AppendEntry(ctx, h.a.id, types.CustomPayloadOf(types.CustomLLMRetryV1, map[string]any{
		"purpose":     info.Purpose,
		"retry_index": info.RetryIndex,
		"max_retries": info.MaxRetries,
		"backoff_ms":  info.Backoff.Milliseconds(),
		"error":       errString(info.Err),
	}))
	if err == nil {
		h.a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: h.a.id, Data: entry})
	}
}

func (h sessionRetryHooks) OnGiveUp(ctx context.Context, info retry.RetryInfo) {
	entry, err := h.a.deps.Store.AppendEntry(ctx, h.a.id, types.CustomPayloadOf(types.CustomLLMGiveUpV1, map[string]any{
		"purpose":     info.Purpose,
		"retry_index": info.RetryIndex,
		"max_retries": info.MaxRetries,
		"error":       errString(info.Err),
	}))
	if err == nil {
		h.a.publish(eventhub.Event{Kind: eventhub.KindEntryAppended, SessionID: h.a.id, Data: entry})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
