package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/logging"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

// subscribeOptionsFromQuery parses the wire contract's resume query
// parameters (spec §6): transcriptSince, transcriptPageSize, systemSince,
// steerSince, followUpSince.
func subscribeOptionsFromQuery(q url.Values) eventhub.SubscribeOptions {
	opts := eventhub.SubscribeOptions{
		SystemSince:   q.Get("systemSince"),
		SteerSince:    q.Get("steerSince"),
		FollowUpSince: q.Get("followUpSince"),
	}
	if v := q.Get("transcriptSince"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.TranscriptSince = &n
		}
	}
	if v := q.Get("transcriptPageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.TranscriptPageSize = n
		}
	}
	return opts
}

// subscribe serves the subscription protocol (spec §4.9, §6): an initial
// snapshot frame followed by live event frames until the client
// disconnects.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	actor, err := s.mgr.EnsureStarted(r.Context(), sessionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	opts := subscribeOptionsFromQuery(r.URL.Query())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Subscribe before taking the snapshot so that an event published
	// between the two calls is still delivered as a live frame; such an
	// event may also already be reflected in the snapshot.
	sub, err := s.hub.Subscribe(r.Context(), sessionID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	defer sub.Close()

	snap, err := actor.Snapshot(r.Context(), opts)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := sse.writeInitial(snap); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if sub.Dropped() > 0 {
				logging.Warn().Str("session_id", sessionID).Uint64("dropped", sub.Dropped()).Msg("transport: subscriber fell behind, client should resubscribe with last cursors")
			}
			if err := sse.writeEvent(ev); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// enqueueRequest is the body of the enqueue endpoint (spec §6: "body is the
// queued-user-message payload").
type enqueueRequest struct {
	ItemID string `json:"item_id,omitempty"`
	Input  string `json:"input"`
}

type enqueueResponse struct {
	ItemID string `json:"item_id"`
}

func laneFromPath(r *http.Request) (types.QueueLane, bool) {
	switch chi.URLParam(r, "lane") {
	case string(types.LaneSteer):
		return types.LaneSteer, true
	case string(types.LaneFollowUp):
		return types.LaneFollowUp, true
	case string(types.LaneSystemUrgent):
		return types.LaneSystemUrgent, true
	default:
		return "", false
	}
}

// enqueue journals an item onto the named lane (spec §4.2's enqueue_user /
// enqueue_system, spec §6: "response is the queue item id").
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	lane, ok := laneFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown lane")
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.ItemID == "" {
		req.ItemID = ulid.Make().String()
	}

	sessionID := chi.URLParam(r, "sessionID")
	actor, err := s.mgr.EnsureStarted(r.Context(), sessionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	var ev types.QueueEvent
	if lane == types.LaneSystemUrgent {
		ev, err = actor.EnqueueSystem(r.Context(), req.ItemID, req.Input)
	} else {
		ev, err = actor.EnqueueUser(r.Context(), req.ItemID, req.Input, lane)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, enqueueResponse{ItemID: ev.ItemID})
}

// cancel journals a cancel event for a previously enqueued item (spec
// §4.2's cancel_user).
func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	lane, ok := laneFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown lane")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	itemID := chi.URLParam(r, "itemID")

	actor, err := s.mgr.EnsureStarted(r.Context(), sessionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	ev, err := actor.CancelUser(itemID, lane)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// promptFollowUp enqueues onto the follow_up lane and blocks until the
// runtime materializes it into a transcript entry (spec §4.2's
// prompt_follow_up).
func (s *Server) promptFollowUp(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.ItemID == "" {
		req.ItemID = ulid.Make().String()
	}

	sessionID := chi.URLParam(r, "sessionID")
	actor, err := s.mgr.EnsureStarted(r.Context(), sessionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	entry, err := actor.PromptFollowUp(r.Context(), req.ItemID, req.Input)
	if err != nil {
		if r.Context().Err() != nil {
			writeError(w, http.StatusRequestTimeout, ErrCodeInvalidRequest, err.Error())
			return
		}
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// modelSelectionRequest is the body of the model-selection endpoint.
type modelSelectionRequest struct {
	Provider        string                 `json:"provider"`
	Model           string                 `json:"model"`
	ReasoningEffort *types.ReasoningEffort `json:"reasoning_effort,omitempty"`
}

// applyModelSelection commits a new provider/model immediately if idle, or
// defers it to the next idle transition (spec §4.2's apply_model_selection).
func (s *Server) applyModelSelection(w http.ResponseWriter, r *http.Request) {
	var req modelSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	actor, err := s.mgr.EnsureStarted(r.Context(), sessionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	settings := types.SessionSettings{Provider: req.Provider, Model: req.Model, ReasoningEffort: req.ReasoningEffort}
	if err := actor.ApplyModelSelection(r.Context(), settings); err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actor.Settings())
}

// stop cancels an in-flight turn and waits for it to unwind (spec §5
// "Cancellation").
func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	actor, ok := s.mgr.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not active")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := actor.Stop(ctx); err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(actor.Status())})
}
