package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore(now time.Time) *Store {
	s := NewStore()
	s.clock = func() time.Time { return now }
	return s
}

func TestPut_RejectsDuplicateID(t *testing.T) {
	s := NewStore()
	if err := s.Put(CallSession{ID: "c1", State: StateInitiating}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(CallSession{ID: "c1", State: StateInitiating}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_AppliesLegalTransition(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := newTestStore(now)
	_ = s.Put(CallSession{ID: "c1", State: StateInitiating})

	got, err := s.Update("c1", func(sess *CallSession) error {
		sess.State = StateActive
		sess.LastStatusAt = now
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.State != StateActive {
		t.Fatalf("expected active, got %s", got.State)
	}
}

func TestUpdate_RejectsBackwardTransition(t *testing.T) {
	s := newTestStore(time.Unix(1700000000, 0).UTC())
	_ = s.Put(CallSession{ID: "c1", State: StateEnded})

	got, err := s.Update("c1", func(sess *CallSession) error {
		sess.State = StateActive
		return nil
	})
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	if got.State != StateEnded {
		t.Fatalf("stored session must be unchanged, got %s", got.State)
	}
}

func TestUpdate_TerminalSessionsAreImmutable(t *testing.T) {
	s := newTestStore(time.Unix(1700000000, 0).UTC())
	_ = s.Put(CallSession{ID: "c1", State: StateFailed, LastError: "boom"})

	_, err := s.Update("c1", func(sess *CallSession) error {
		sess.LastError = "rewritten"
		return nil
	})
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	got, _ := s.Get("c1")
	if got.LastError != "boom" {
		t.Fatalf("terminal session mutated: %q", got.LastError)
	}
}

func TestUpdate_FnErrorAbortsWithoutChange(t *testing.T) {
	s := newTestStore(time.Unix(1700000000, 0).UTC())
	_ = s.Put(CallSession{ID: "c1", State: StateActive})

	sentinel := errors.New("nope")
	got, err := s.Update("c1", func(sess *CallSession) error {
		sess.State = StateEnded
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if got.State != StateActive {
		t.Fatalf("expected unchanged session, got %s", got.State)
	}
}

func TestUpdate_StampsTerminatedAt(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := newTestStore(now)
	_ = s.Put(CallSession{ID: "c1", State: StateEnding})

	got, err := s.Update("c1", func(sess *CallSession) error {
		sess.State = StateEnded
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.TerminatedAt.Equal(now) {
		t.Fatalf("expected terminated_at %v, got %v", now, got.TerminatedAt)
	}
}

func TestUpdate_ConflictingObservations_MonotonicWins(t *testing.T) {
	// An "ended" observation applied first must cause a later "active"
	// observation to be rejected, regardless of arrival order.
	s := newTestStore(time.Unix(1700000000, 0).UTC())
	_ = s.Put(CallSession{ID: "c1", State: StateActive})

	if _, err := s.Update("c1", func(sess *CallSession) error {
		sess.State = StateEnded
		return nil
	}); err != nil {
		t.Fatalf("ended update: %v", err)
	}

	got, err := s.Update("c1", func(sess *CallSession) error {
		sess.State = StateActive
		return nil
	})
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	if got.State != StateEnded {
		t.Fatalf("expected authoritative ended, got %s", got.State)
	}
}

func TestUpdate_ConcurrentSameID_NoCorruption(t *testing.T) {
	s := newTestStore(time.Unix(1700000000, 0).UTC())
	_ = s.Put(CallSession{ID: "c1", State: StateActive})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Update("c1", func(sess *CallSession) error {
				sess.State = StateEnded
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Update("c1", func(sess *CallSession) error {
				sess.State = StateActive
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := s.Get("c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Once ended, the session can never be active again.
	if got.State != StateEnded {
		t.Fatalf("expected ended after racing updates, got %s", got.State)
	}
}

func TestListActive_ExcludesTerminal(t *testing.T) {
	s := newTestStore(time.Unix(1700000000, 0).UTC())
	_ = s.Put(CallSession{ID: "a", State: StateInitiating})
	_ = s.Put(CallSession{ID: "b", State: StateActive})
	_ = s.Put(CallSession{ID: "c", State: StateEnding})
	_ = s.Put(CallSession{ID: "d", State: StateEnded})
	_ = s.Put(CallSession{ID: "e", State: StateFailed})

	active := s.ListActive()
	if len(active) != 3 {
		t.Fatalf("expected 3 active sessions, got %d", len(active))
	}
	for _, sess := range active {
		if sess.State.IsTerminal() {
			t.Fatalf("terminal session %s listed active", sess.ID)
		}
	}
}

func TestEvictTerminal_HonorsRetention(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := newTestStore(now)
	_ = s.Put(CallSession{ID: "old", State: StateEnded, TerminatedAt: now.Add(-10 * time.Minute)})
	_ = s.Put(CallSession{ID: "fresh", State: StateEnded, TerminatedAt: now.Add(-1 * time.Minute)})
	_ = s.Put(CallSession{ID: "live", State: StateActive})

	if n := s.EvictTerminal(5 * time.Minute); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := s.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old evicted")
	}
	if _, err := s.Get("fresh"); err != nil {
		t.Fatalf("fresh must survive: %v", err)
	}
	if _, err := s.Get("live"); err != nil {
		t.Fatalf("live must survive: %v", err)
	}
}
