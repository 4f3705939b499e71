package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound  = errors.New("session: not found")
	ErrDuplicate = errors.New("session: id already exists")

	// ErrStaleTransition means a mutation attempted an illegal state move,
	// typically an out-of-order status observation arriving after a newer
	// transition was already applied. The stored session is left unchanged.
	ErrStaleTransition = errors.New("session: stale transition rejected")
)

// Store is the authoritative in-process mapping from call id to session.
//
// Update is atomic per id: two concurrent observations of the same call are
// serialized, and the one attempting an illegal (backward) transition loses,
// regardless of arrival order. Sessions for different ids are independent.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]CallSession

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]CallSession),
		clock:    time.Now,
	}
}

// Put registers a new session. The id must not already exist.
func (s *Store) Put(sess CallSession) error {
	if sess.ID == "" {
		return errors.New("session: id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrDuplicate
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) Get(id string) (CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return sess, nil
}

// Update applies fn to a copy of the stored session and commits the result
// if the implied state transition is legal.
//
// - fn returning an error aborts the update; nothing is stored.
// - An illegal transition (including any mutation of a terminal session)
//   returns the current session unchanged together with ErrStaleTransition.
// - Entering a terminal state stamps TerminatedAt.
func (s *Store) Update(id string, fn func(*CallSession) error) (CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}

	next := cur
	if err := fn(&next); err != nil {
		return cur, err
	}

	if next.State != cur.State {
		if !cur.State.CanTransitionTo(next.State) {
			return cur, ErrStaleTransition
		}
		if next.State.IsTerminal() {
			next.TerminatedAt = s.clock()
		}
	} else if cur.State.IsTerminal() {
		// Terminal sessions are immutable.
		if next != cur {
			return cur, ErrStaleTransition
		}
	}

	next.ID = cur.ID // ids are immutable
	s.sessions[id] = next
	return next, nil
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ListActive returns all sessions still in a non-terminal state.
func (s *Store) ListActive() []CallSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CallSession, 0)
	for _, sess := range s.sessions {
		if !sess.State.IsTerminal() {
			out = append(out, sess)
		}
	}
	return out
}

// EvictTerminal removes terminal sessions whose retention window has passed.
// Returns the number of sessions evicted.
func (s *Store) EvictTerminal(retention time.Duration) int {
	cutoff := s.clock().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.State.IsTerminal() && !sess.TerminatedAt.IsZero() && sess.TerminatedAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Janitor periodically evicts expired terminal sessions until ctx is done.
func (s *Store) Janitor(ctx context.Context, sweep, retention time.Duration) {
	t := time.NewTicker(sweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.EvictTerminal(retention)
		}
	}
}
