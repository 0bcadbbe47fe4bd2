package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wuhu-labs/wuhu/internal/eventhub"
)

type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() { m.flushed++ }

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{ResponseRecorder: httptest.NewRecorder()}
}

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}

func TestNewSSEWriterRejectsNonFlusher(t *testing.T) {
	_, err := newSSEWriter(&noFlushWriter{})
	if err == nil {
		t.Fatal("expected error for a writer without Flush")
	}
}

func TestSSEWriterWriteInitialIncludesKindAndSnapshot(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	if err != nil {
		t.Fatalf("newSSEWriter: %v", err)
	}

	if err := sse.writeInitial(eventhub.Snapshot{Status: "idle"}); err != nil {
		t.Fatalf("writeInitial: %v", err)
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("expected SSE data line, got %q", body)
	}
	if !strings.Contains(body, `"kind":"initial"`) {
		t.Errorf("expected kind=initial, got %s", body)
	}
	if !strings.Contains(body, `"status":"idle"`) {
		t.Errorf("expected snapshot fields flattened into the frame, got %s", body)
	}
	if w.flushed == 0 {
		t.Error("expected Flush to be called")
	}
}

func TestSSEWriterWriteEventWrapsUnderEventKey(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	if err := sse.writeEvent(eventhub.Event{Kind: eventhub.KindIdle, SessionID: "sess-1"}); err != nil {
		t.Fatalf("writeEvent: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, `"kind":"event"`) {
		t.Errorf("expected kind=event, got %s", body)
	}
	if !strings.Contains(body, `"event":{`) {
		t.Errorf("expected nested event object, got %s", body)
	}
}

func TestSSEWriterWriteHeartbeat(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	sse.writeHeartbeat()

	body := w.Body.String()
	if !strings.Contains(body, ": heartbeat\n") {
		t.Errorf("expected heartbeat comment, got %q", body)
	}
	if w.flushed == 0 {
		t.Error("expected Flush to be called")
	}
}
