package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wuhu-labs/wuhu/internal/eventhub"
)

// heartbeatInterval matches the teacher's SSE heartbeat cadence.
const heartbeatInterval = 30 * time.Second

// initialFrame is the subscription protocol's first frame: the snapshot's
// fields flattened alongside kind (spec §6: `{"kind":"initial",...}`).
type initialFrame struct {
	Kind string `json:"kind"`
	eventhub.Snapshot
}

// eventFrame wraps every subsequent live event (spec §6:
// `{"kind":"event","event":...}`).
type eventFrame struct {
	Kind  string         `json:"kind"`
	Event eventhub.Event `json:"event"`
}

// sseWriter wraps http.ResponseWriter for Server-Sent Events, grounded on
// the teacher's internal/server/sse.go sseWriter (ResponseController-first
// flushing, falling back to the Flusher interface).
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeInitial(snap eventhub.Snapshot) error {
	return s.writeJSON(initialFrame{Kind: "initial", Snapshot: snap})
}

func (s *sseWriter) writeEvent(ev eventhub.Event) error {
	return s.writeJSON(eventFrame{Kind: "event", Event: ev})
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}
