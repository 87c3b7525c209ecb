package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/quickrewind/agentcore/core"
)

// FrameType discriminates duplex transport frames. Event frames wrap a
// sequenced StreamEvent; the remaining types are control traffic and carry no
// sequence number.
type FrameType string

const (
	// FrameEvent wraps one sequenced session event (server to client).
	FrameEvent FrameType = "event"
	// FrameHeartbeat is a keepalive. It carries no sequence number.
	FrameHeartbeat FrameType = "heartbeat"
	// FrameRequest starts a session on a duplex connection (client to server).
	FrameRequest FrameType = "request"
	// FrameCancel requests cancellation of the bound session (client to server).
	FrameCancel FrameType = "cancel"
	// FrameError reports a transport-level failure outside any session stream.
	FrameError FrameType = "error"
)

// MaxFrameSize bounds a single encoded frame. The incremental decoder
// rejects anything larger rather than buffering without limit.
const MaxFrameSize = 1 << 20

// Frame is one newline-delimited JSON unit on a duplex transport. The codec
// is self-delimiting so frames survive arbitrary fragmentation by the
// underlying connection.
type Frame struct {
	Type      FrameType         `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Event     *core.StreamEvent `json:"event,omitempty"`
	Request   string            `json:"request,omitempty"`
	Message   string            `json:"message,omitempty"`
	Time      time.Time         `json:"time"`
}

// terminal reports whether the frame carries a session-terminal event, after
// which the server closes the connection.
func (f Frame) terminal() bool {
	return f.Type == FrameEvent && f.Event != nil &&
		(f.Event.Type == core.EventComplete || f.Event.Type == core.EventError)
}

// EventFrame wraps a sequenced event for a session.
func EventFrame(sessionID string, ev core.StreamEvent) Frame {
	return Frame{Type: FrameEvent, SessionID: sessionID, Event: &ev, Time: time.Now().UTC()}
}

// HeartbeatFrame builds a keepalive frame.
func HeartbeatFrame() Frame {
	return Frame{Type: FrameHeartbeat, Time: time.Now().UTC()}
}

// ErrorFrame reports a transport failure.
func ErrorFrame(sessionID, message string) Frame {
	return Frame{Type: FrameError, SessionID: sessionID, Message: message, Time: time.Now().UTC()}
}

// Marshal encodes a frame including its trailing newline delimiter.
func Marshal(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return append(data, '\n'), nil
}

// Encoder writes newline-delimited frames to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps a writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one frame and its delimiter.
func (e *Encoder) Encode(f Frame) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return core.NewTransportError(err)
	}
	return nil
}

// Decoder reassembles frames from arbitrarily fragmented input. Feed may be
// called with any byte slicing of the underlying stream, including partial
// frames and multiple frames per call; complete frames are returned in order
// and incomplete tails are buffered for the next call.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends raw bytes and returns every frame completed by them.
func (d *Decoder) Feed(p []byte) ([]Frame, error) {
	if _, err := d.buf.Write(p); err != nil {
		return nil, err
	}

	var frames []Frame
	for {
		line, err := d.nextLine()
		if err != nil {
			return frames, err
		}
		if line == nil {
			return frames, nil
		}
		if len(line) == 0 {
			continue
		}

		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return frames, core.NewTransportError(fmt.Errorf("malformed frame: %w", err))
		}
		frames = append(frames, f)
	}
}

// nextLine extracts the next complete newline-terminated line, or nil when
// only a partial frame is buffered.
func (d *Decoder) nextLine() ([]byte, error) {
	data := d.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		if d.buf.Len() > MaxFrameSize {
			return nil, core.NewTransportError(fmt.Errorf("frame exceeds %d bytes", MaxFrameSize))
		}
		return nil, nil
	}
	if idx > MaxFrameSize {
		return nil, core.NewTransportError(fmt.Errorf("frame exceeds %d bytes", MaxFrameSize))
	}

	line := make([]byte, idx)
	copy(line, data[:idx])
	d.buf.Next(idx + 1)
	return bytes.TrimSpace(line), nil
}

// Pending reports how many buffered bytes await completion of a frame.
func (d *Decoder) Pending() int {
	return d.buf.Len()
}
