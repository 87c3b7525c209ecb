// Package stream carries per-session progress events from the executor to
// connected clients. The Bus assigns each session a gapless sequence starting
// at 1 and fans events out to attached sinks; late subscribers receive the
// full history first so no sequence is ever skipped from their point of view.
// Two sink implementations ship with the package: a server-sent-events push
// stream and a duplex WebSocket connection speaking the newline-delimited
// JSON frame codec.
package stream

import (
	"sync"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/logging"
)

// Sink receives ordered events for one session. Deliver is called with
// sequence numbers already assigned; a non-nil error detaches the sink.
// Heartbeat keepalives bypass sequencing entirely.
type Sink interface {
	Deliver(ev core.StreamEvent) error
	Heartbeat() error
}

// Options configure the bus. OnPublish observes every published event after
// sequence assignment; metrics hang off it.
type Options struct {
	Logger    logging.Logger
	OnPublish func(sessionID string, ev core.StreamEvent)
}

// Bus routes events to per-session topics.
type Bus struct {
	mu        sync.RWMutex
	topics    map[string]*topic
	logger    logging.Logger
	onPublish func(string, core.StreamEvent)
}

type topic struct {
	mu      sync.Mutex
	seq     uint64
	history []core.StreamEvent
	sinks   map[int]Sink
	nextID  int
}

// NewBus creates an empty bus.
func NewBus(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{
		topics:    make(map[string]*topic),
		logger:    opts.Logger,
		onPublish: opts.OnPublish,
	}
}

func (b *Bus) topicFor(sessionID string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[sessionID]
	if !ok {
		t = &topic{sinks: make(map[int]Sink)}
		b.topics[sessionID] = t
	}
	return t
}

// Publish stamps the event with the session's next sequence number, records
// it for late subscribers and delivers it to every attached sink. The
// stamped event is returned. Sinks whose Deliver fails are detached; one
// broken client never stalls the session.
func (b *Bus) Publish(sessionID string, ev core.StreamEvent) core.StreamEvent {
	t := b.topicFor(sessionID)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	ev.Sequence = t.seq
	t.history = append(t.history, ev)

	if b.onPublish != nil {
		b.onPublish(sessionID, ev)
	}

	for id, s := range t.sinks {
		if err := s.Deliver(ev); err != nil {
			b.logger.Warn("detaching stream sink", "session_id", sessionID, "error", err)
			delete(t.sinks, id)
		}
	}
	return ev
}

// Subscribe attaches a sink to the session. The session's full event history
// is replayed into the sink before it sees live traffic, under the topic
// lock, so the sink observes sequences 1..n with no gap and no duplicate.
// The returned function detaches the sink.
func (b *Bus) Subscribe(sessionID string, sink Sink) (func(), error) {
	t := b.topicFor(sessionID)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ev := range t.history {
		if err := sink.Deliver(ev); err != nil {
			return nil, core.NewTransportError(err)
		}
	}

	id := t.nextID
	t.nextID++
	t.sinks[id] = sink

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.sinks, id)
	}, nil
}

// Heartbeat sends a keepalive to every sink of the session. Heartbeats carry
// no sequence number and are not recorded in history.
func (b *Bus) Heartbeat(sessionID string) {
	b.mu.RLock()
	t, ok := b.topics[sessionID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.sinks {
		if err := s.Heartbeat(); err != nil {
			b.logger.Warn("detaching stream sink", "session_id", sessionID, "error", err)
			delete(t.sinks, id)
		}
	}
}

// CloseTopic drops a finished session's topic and detaches its sinks. Safe
// to call for unknown sessions.
func (b *Bus) CloseTopic(sessionID string) {
	b.mu.Lock()
	t, ok := b.topics[sessionID]
	delete(b.topics, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = make(map[int]Sink)
}

// Sequence returns the last sequence number assigned to the session, zero
// when nothing has been published.
func (b *Bus) Sequence(sessionID string) uint64 {
	b.mu.RLock()
	t, ok := b.topics[sessionID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}
