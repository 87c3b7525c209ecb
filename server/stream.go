package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// terminalNotifier wraps a sink and signals once a terminal event has been
// delivered, so the connection handler knows when the stream is complete.
type terminalNotifier struct {
	stream.Sink
	done chan struct{}
}

func newTerminalNotifier(sink stream.Sink) *terminalNotifier {
	return &terminalNotifier{Sink: sink, done: make(chan struct{})}
}

func (n *terminalNotifier) Deliver(ev core.StreamEvent) error {
	err := n.Sink.Deliver(ev)
	if err == nil && (ev.Type == core.EventComplete || ev.Type == core.EventError) {
		select {
		case <-n.done:
		default:
			close(n.done)
		}
	}
	return err
}

// handleStream attaches an SSE push stream to an existing session. The full
// event history is replayed first; the connection closes after the terminal
// event or when the client goes away.
func (s *Server) handleStream(c echo.Context) error {
	id := c.Param("session_id")
	if _, ok := s.store.Get(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	sink, err := stream.NewSSESink(c.Response())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Transport handshake. Like heartbeats it carries no session sequence.
	if err := sink.Deliver(core.ConnectedEvent(id)); err != nil {
		return nil
	}

	notifier := newTerminalNotifier(sink)
	unsubscribe, err := s.bus.Subscribe(id, notifier)
	if err != nil {
		return nil
	}
	defer unsubscribe()

	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-notifier.done:
			return nil
		case <-ticker.C:
			if err := sink.Heartbeat(); err != nil {
				return nil
			}
		}
	}
}

// handleWebSocket upgrades to a duplex connection. The client starts a
// session with a request frame and may cancel it with a cancel frame; the
// server streams event frames and heartbeats back.
func (s *Server) handleWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.opts.Logger.Warn("websocket upgrade failed", "error", err)
		return err
	}

	conn := stream.NewWSConn(ws, s.opts.Logger)
	go conn.WritePump()
	go s.heartbeatLoop(conn)

	conn.ReadPump(func(f stream.Frame) { s.handleFrame(conn, f) })

	// The duplex connection owns the session it started. Losing the client
	// cancels the session; Cancel no-ops if it already reached a terminal
	// state (normal close after complete/error).
	if id := conn.SessionID(); id != "" {
		if s.store.Cancel(id) {
			s.opts.Logger.Info("session cancelled after client disconnect", "session_id", id)
		}
	}
	return nil
}

func (s *Server) heartbeatLoop(conn *stream.WSConn) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.C:
			if err := conn.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleFrame(conn *stream.WSConn, f stream.Frame) {
	switch f.Type {
	case stream.FrameRequest:
		s.handleRequestFrame(conn, f)
	case stream.FrameCancel:
		s.handleCancelFrame(conn, f)
	case stream.FrameHeartbeat:
		// Keepalive from the client, nothing to do.
	default:
		conn.SendError("unsupported frame type: " + string(f.Type))
	}
}

func (s *Server) handleRequestFrame(conn *stream.WSConn, f stream.Frame) {
	if conn.SessionID() != "" {
		conn.SendError("connection already bound to a session")
		return
	}
	if strings.TrimSpace(f.Request) == "" {
		conn.SendError("request must not be empty")
		return
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.SessionStarted()
	}
	sess := s.executor.Start(context.Background(), f.Request)
	conn.Bind(sess.ID)

	// Transport handshake, outside the sequenced stream.
	conn.Deliver(core.ConnectedEvent(sess.ID))
	if _, err := s.bus.Subscribe(sess.ID, conn); err != nil {
		conn.SendError(err.Error())
	}
}

func (s *Server) handleCancelFrame(conn *stream.WSConn, f stream.Frame) {
	id := f.SessionID
	if id == "" {
		id = conn.SessionID()
	}
	if id == "" {
		conn.SendError("no session to cancel")
		return
	}
	if !s.store.Cancel(id) {
		conn.SendError("session not found or already finished")
	}
}
