package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/pkg/types"
)

func TestEnqueueSteerReturnsItemID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"input":"hello there"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/queue/steer", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp enqueueResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.ItemID)
}

func TestEnqueueRejectsUnknownLane(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"input":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/queue/bogus", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
}

func TestEnqueueUnknownSessionIsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"input":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/does-not-exist/queue/steer", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelJournalsCancelEvent(t *testing.T) {
	srv, _, _ := newTestServer(t)

	enqueueReq := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/queue/follow_up", bytes.NewBufferString(`{"item_id":"item-1","input":"later"}`))
	enqueueW := httptest.NewRecorder()
	srv.Router().ServeHTTP(enqueueW, enqueueReq)
	require.Equal(t, http.StatusAccepted, enqueueW.Code)

	cancelReq := httptest.NewRequest(http.MethodDelete, "/sessions/sess-1/queue/follow_up/item-1", nil)
	cancelW := httptest.NewRecorder()
	srv.Router().ServeHTTP(cancelW, cancelReq)

	require.Equal(t, http.StatusOK, cancelW.Code)
	var ev types.QueueEvent
	require.NoError(t, json.NewDecoder(cancelW.Body).Decode(&ev))
	require.Equal(t, types.QueueEventCanceled, ev.Kind)
}

func TestApplyModelSelectionCommitsWhenIdle(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"provider":"mock","model":"mock-model"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/model", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var settings types.SessionSettings
	require.NoError(t, json.NewDecoder(w.Body).Decode(&settings))
	require.Equal(t, "mock-model", settings.Model)
}

func TestStopUnstartedSessionIsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/stop", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscribeEmitsInitialFrameThenLiveEvent(t *testing.T) {
	srv, hub, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sessions/sess-1/events", nil)
	require.NoError(t, err)

	client := &http.Client{}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var frames []string
	deadline := time.Now().Add(1500 * time.Millisecond)

	require.True(t, scanner.Scan())
	first := scanner.Text()
	require.True(t, strings.HasPrefix(first, "data: "))
	require.Contains(t, first, `"kind":"initial"`)
	frames = append(frames, first)

	// Publish a live event for this session once the subscriber is attached.
	go func() {
		time.Sleep(50 * time.Millisecond)
		hub.Publish(eventhub.Event{Kind: eventhub.KindIdle, SessionID: "sess-1"})
	}()

	for scanner.Scan() && time.Now().Before(deadline) {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, line)
			if strings.Contains(line, `"kind":"event"`) {
				break
			}
		}
	}

	found := false
	for _, f := range frames {
		if strings.Contains(f, `"kind":"event"`) {
			found = true
		}
	}
	require.True(t, found, "expected a live event frame, got %v", frames)
}
