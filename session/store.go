// Package session keeps the live sessions of a process in memory so that
// transports can look them up by ID, cancellation can reach a running
// executor, and finished sessions eventually get swept out.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/logging"
)

// DefaultRetention is how long a terminal session stays queryable before the
// sweeper removes it.
const DefaultRetention = 10 * time.Minute

// Options configure the store. OnEvict runs after a session leaves the
// store, so owners of per-session resources (stream topics, metrics) can
// release them.
type Options struct {
	Retention time.Duration
	Logger    logging.Logger
	OnEvict   func(sessionID string)
}

type entry struct {
	session  *core.Session
	cancel   context.CancelFunc
	finished time.Time
}

// Store is an in-memory registry of live and recently finished sessions.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	retention time.Duration
	logger    logging.Logger
	onEvict   func(string)
}

// NewStore creates an empty store.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{Retention: DefaultRetention, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		entries:   make(map[string]*entry),
		retention: opts.Retention,
		logger:    opts.Logger,
		onEvict:   opts.OnEvict,
	}
}

// Put registers a session together with the cancel function that aborts its
// executor.
func (s *Store) Put(sess *core.Session, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID] = &entry{session: sess, cancel: cancel}
}

// Get looks up a session by ID.
func (s *Store) Get(id string) (*core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Cancel aborts a running session and reports whether a live session was
// found. Cancelling an already terminal session is a no-op.
func (s *Store) Cancel(id string) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if e.session.Status().Terminal() {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	return true
}

// Finish marks a session as terminal for retention purposes. The executor
// calls this after publishing the terminal event.
func (s *Store) Finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.finished = time.Now()
	}
}

// Remove drops a session immediately.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok && s.onEvict != nil {
		s.onEvict(id)
	}
}

// Len reports the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes terminal sessions finished more than the retention period
// ago and returns how many were dropped.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	var evicted []string
	for id, e := range s.entries {
		if e.finished.IsZero() {
			continue
		}
		if now.Sub(e.finished) >= s.retention {
			delete(s.entries, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	// Hooks run outside the lock; they may call back into the store.
	if s.onEvict != nil {
		for _, id := range evicted {
			s.onEvict(id)
		}
	}
	return len(evicted)
}

// RunSweeper sweeps on the given interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.Debug("swept finished sessions", "count", n)
			}
		}
	}
}
