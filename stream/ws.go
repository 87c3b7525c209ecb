package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 64
)

var (
	errConnClosed     = errors.New("websocket connection closed")
	errSendBufferFull = errors.New("websocket send buffer full")
)

// WSConn adapts a WebSocket connection into a Sink and a source of inbound
// control frames. Outbound frames go through a single writer goroutine; the
// reader goroutine feeds raw messages through the incremental frame decoder,
// so a peer may fragment frames across WebSocket messages or batch several
// frames into one.
type WSConn struct {
	mu        sync.RWMutex
	sessionID string
	conn      *websocket.Conn
	send      chan Frame
	done      chan struct{}
	closeOnce sync.Once
	logger    logging.Logger
}

// NewWSConn wraps an upgraded connection. The session binding is set later,
// once the client's request frame arrives.
func NewWSConn(conn *websocket.Conn, logger logging.Logger) *WSConn {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &WSConn{
		conn:   conn,
		send:   make(chan Frame, wsSendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Bind ties the connection to a session.
func (c *WSConn) Bind(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

// SessionID returns the session this connection is bound to, empty before
// the request frame.
func (c *WSConn) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Deliver queues one event frame for the writer goroutine.
func (c *WSConn) Deliver(ev core.StreamEvent) error {
	return c.enqueue(EventFrame(c.SessionID(), ev))
}

// Heartbeat queues a keepalive frame.
func (c *WSConn) Heartbeat() error {
	return c.enqueue(HeartbeatFrame())
}

// SendError queues a transport error frame.
func (c *WSConn) SendError(message string) error {
	return c.enqueue(ErrorFrame(c.SessionID(), message))
}

func (c *WSConn) enqueue(f Frame) error {
	select {
	case <-c.done:
		return core.NewTransportError(errConnClosed)
	case c.send <- f:
		return nil
	default:
		// A client that stopped reading gets detached, not buffered forever.
		return core.NewTransportError(errSendBufferFull)
	}
}

// WritePump drains the send queue onto the wire and pings on an interval.
// It owns all writes to the connection and returns when the connection dies
// or Close is called.
func (c *WSConn) WritePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-c.send:
			data, err := Marshal(f)
			if err != nil {
				c.logger.Warn("dropping unencodable frame", "session_id", c.SessionID(), "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", "session_id", c.SessionID(), "error", err)
				return
			}
			// The connection is torn down once the terminal event is on the
			// wire; clients must not expect anything after complete or error.
			if f.terminal() {
				c.Close()
				c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads until the connection closes, reassembling frames and
// passing each complete one to handle. Pongs refresh the read deadline.
func (c *WSConn) ReadPump(handle func(Frame)) {
	defer c.Close()

	c.conn.SetReadLimit(MaxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	dec := NewDecoder()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", "session_id", c.SessionID(), "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		frames, err := dec.Feed(data)
		for _, f := range frames {
			handle(f)
		}
		if err != nil {
			c.SendError(err.Error())
			return
		}
	}
}

// Done is closed when the connection shuts down.
func (c *WSConn) Done() <-chan struct{} { return c.done }

// Close stops both pumps. Idempotent.
func (c *WSConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
