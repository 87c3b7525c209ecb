package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/quickrewind/agentcore/core"
)

// SSESink pushes events as server-sent events. Each event is written as an
// `event:` line naming the event type followed by a `data:` line with the
// JSON-encoded StreamEvent; heartbeats are SSE comments so standard
// EventSource clients ignore them.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink prepares a response writer for event streaming and sends the
// SSE headers. It fails when the writer cannot flush incrementally.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, core.NewTransportError(fmt.Errorf("response writer does not support flushing"))
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSESink{w: w, flusher: flusher}, nil
}

// Deliver writes one event and flushes immediately.
func (s *SSESink) Deliver(ev core.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return core.NewTransportError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return core.NewTransportError(err)
	}
	s.flusher.Flush()
	return nil
}

// Heartbeat writes a comment line to keep the connection alive.
func (s *SSESink) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return core.NewTransportError(err)
	}
	s.flusher.Flush()
	return nil
}
