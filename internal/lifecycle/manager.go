package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"click2call-gateway/internal/provider"
	"click2call-gateway/internal/session"
	"click2call-gateway/pkg/logger"
)

var (
	// ErrInvalidState means the requested action is illegal for the
	// session's current state.
	ErrInvalidState = errors.New("lifecycle: invalid state for operation")
	// ErrInvalidNumber means the destination is not E.164.
	ErrInvalidNumber = errors.New("lifecycle: invalid phone number")
	// ErrInvalidDigit means the DTMF digit is outside [0-9A-D#*].
	ErrInvalidDigit = errors.New("lifecycle: invalid dtmf digit")
)

const endConfirmTimeoutError = "end-confirmation-timeout"

var (
	e164Re  = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	digitRe = regexp.MustCompile(`^[0-9A-D#*]$`)
)

// Config tunes the lifecycle engine.
type Config struct {
	// PollInterval is how often active sessions are polled.
	PollInterval time.Duration
	// EndConfirmTimeout bounds how long a session may sit in Ending.
	EndConfirmTimeout time.Duration
	// PollFailureThreshold is the number of consecutive transient poll
	// failures before a session is marked Failed.
	PollFailureThreshold int
	// CallbackURL, when set, is passed to the provider at call creation so
	// status changes can be pushed instead of waiting for the next poll.
	CallbackURL string
}

func (c Config) withDefaults() Config {
	out := c
	if out.PollInterval <= 0 {
		out.PollInterval = 2 * time.Second
	}
	if out.EndConfirmTimeout <= 0 {
		out.EndConfirmTimeout = 30 * time.Second
	}
	if out.PollFailureThreshold <= 0 {
		out.PollFailureThreshold = 3
	}
	return out
}

// Manager orchestrates call session creation, status polling and termination.
//
// It is the only writer of call sessions. Client actions and provider-reported
// status observations both converge on the store's atomic Update, which keeps
// state transitions monotonic: a stale observation can never resurrect a call.
type Manager struct {
	provider provider.Client
	store    *session.Store
	cfg      Config
	log      *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewManager(p provider.Client, store *session.Store, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		provider: p,
		store:    store,
		cfg:      cfg.withDefaults(),
		log:      log,
		clock:    time.Now,
	}
}

// Initiate places a call and registers a session for it. This is the only
// path that creates sessions; on provider failure no session exists.
func (m *Manager) Initiate(ctx context.Context, destination, callerID string) (session.CallSession, error) {
	if !e164Re.MatchString(destination) {
		return session.CallSession{}, ErrInvalidNumber
	}
	if callerID != "" && !e164Re.MatchString(callerID) {
		return session.CallSession{}, ErrInvalidNumber
	}

	handle, err := m.provider.CreateCall(ctx, provider.CreateCallRequest{
		To:          destination,
		From:        callerID,
		CallbackURL: m.cfg.CallbackURL,
	})
	if err != nil {
		m.log.Error("call initiation failed", "destination", logger.RedactPhone(destination), "err", err)
		return session.CallSession{}, err
	}

	now := m.clock().UTC()
	sess := session.CallSession{
		ID:           handle.ProviderCallID,
		State:        session.StateInitiating,
		Destination:  destination,
		CallerID:     callerID,
		CreatedAt:    now,
		LastStatusAt: now,
	}
	if err := m.store.Put(sess); err != nil {
		// Duplicate provider id would violate the id-reuse invariant.
		m.log.Error("session registration failed", "call_id", sess.ID, "err", err)
		return session.CallSession{}, err
	}

	m.log.Info("call initiated", "call_id", sess.ID, "destination", logger.RedactPhone(destination))
	return sess, nil
}

// RequestEnd transitions a session to Ending and asks the provider to hang
// up. The session always reaches a terminal state: Ended on success or soft
// provider rejection (already ended upstream), Failed on hard failure.
func (m *Manager) RequestEnd(ctx context.Context, id string) (session.CallSession, error) {
	now := m.clock().UTC()
	sess, err := m.store.Update(id, func(s *session.CallSession) error {
		if s.State.IsTerminal() {
			return ErrInvalidState
		}
		s.State = session.StateEnding
		s.EndRequestedAt = now
		return nil
	})
	if err != nil {
		return sess, err
	}

	endErr := m.provider.EndCall(ctx, id)
	if endErr == nil || provider.IsRejected(endErr) {
		if endErr != nil {
			// Already gone at the provider; honor the caller's intent.
			m.log.Warn("provider end rejected, completing anyway", "call_id", id, "err", endErr)
		}
		sess, err = m.store.Update(id, func(s *session.CallSession) error {
			s.State = session.StateEnded
			s.LastStatusAt = m.clock().UTC()
			return nil
		})
		if errors.Is(err, session.ErrStaleTransition) {
			// A concurrent observation already finished the session.
			return sess, nil
		}
		return sess, err
	}

	// Hard failure: mark terminal so the session never sticks in Ending,
	// and surface the provider error to the caller.
	sess, updErr := m.store.Update(id, func(s *session.CallSession) error {
		s.State = session.StateFailed
		s.LastError = endErr.Error()
		s.LastStatusAt = m.clock().UTC()
		return nil
	})
	if updErr != nil && !errors.Is(updErr, session.ErrStaleTransition) {
		m.log.Error("end failure bookkeeping failed", "call_id", id, "err", updErr)
	}
	return sess, endErr
}

// SendDigit relays a DTMF digit to an active call. Digit failures never
// change session state.
func (m *Manager) SendDigit(ctx context.Context, id, digit string) error {
	if !digitRe.MatchString(digit) {
		return ErrInvalidDigit
	}

	sess, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if sess.State != session.StateActive {
		return ErrInvalidState
	}

	if err := m.provider.SendDigit(ctx, id, digit); err != nil {
		m.log.Warn("dtmf send failed", "call_id", id, "err", err)
		return err
	}
	return nil
}

// GetSession returns the authoritative session for a call.
func (m *Manager) GetSession(id string) (session.CallSession, error) {
	return m.store.Get(id)
}

// PollStatus queries the provider for one session and applies the observed
// status. Transient failures are absorbed until the consecutive-failure
// threshold is reached; stale observations are discarded.
func (m *Manager) PollStatus(ctx context.Context, id string) (session.CallSession, error) {
	sess, err := m.store.Get(id)
	if err != nil {
		return session.CallSession{}, err
	}
	if sess.State.IsTerminal() {
		return sess, nil
	}

	// A session must never sit in Ending past the confirmation timeout.
	if sess.State == session.StateEnding && !sess.EndRequestedAt.IsZero() &&
		m.clock().Sub(sess.EndRequestedAt) > m.cfg.EndConfirmTimeout {
		forced, err := m.store.Update(id, func(s *session.CallSession) error {
			s.State = session.StateEnded
			s.LastError = endConfirmTimeoutError
			s.LastStatusAt = m.clock().UTC()
			return nil
		})
		if err == nil {
			m.log.Warn("forced end after confirmation timeout", "call_id", id)
			return forced, nil
		}
		if errors.Is(err, session.ErrStaleTransition) {
			return forced, nil
		}
		return forced, err
	}

	st, err := m.provider.GetStatus(ctx, id)
	if err != nil {
		return m.handlePollFailure(id, err)
	}
	return m.ApplyProviderStatus(id, st)
}

// handlePollFailure absorbs transient failures and declares the session
// Failed only after sustained unreachability or a definitive rejection.
func (m *Manager) handlePollFailure(id string, pollErr error) (session.CallSession, error) {
	pe, _ := provider.AsError(pollErr)

	// A definitive provider rejection means the call is unknown upstream.
	if pe != nil && pe.Kind == provider.KindProviderClient {
		sess, err := m.store.Update(id, func(s *session.CallSession) error {
			if s.State == session.StateEnding {
				s.State = session.StateEnded
			} else {
				s.State = session.StateFailed
			}
			s.LastError = pollErr.Error()
			s.LastStatusAt = m.clock().UTC()
			return nil
		})
		if err != nil && !errors.Is(err, session.ErrStaleTransition) {
			return sess, err
		}
		return sess, nil
	}

	// Network or provider 5xx: count and retry on the next tick.
	sess, err := m.store.Update(id, func(s *session.CallSession) error {
		s.PollFailures++
		if s.PollFailures >= m.cfg.PollFailureThreshold {
			s.State = session.StateFailed
			s.LastError = "provider unreachable: " + pollErr.Error()
		}
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrStaleTransition) {
		return sess, err
	}
	if sess.State == session.StateFailed {
		m.log.Error("session failed after repeated poll failures", "call_id", id, "failures", sess.PollFailures)
	} else {
		m.log.Debug("transient poll failure", "call_id", id, "failures", sess.PollFailures, "err", pollErr)
	}
	return sess, nil
}

// ApplyProviderStatus folds one provider status observation into the
// session. Both the poll loop and the provider callback endpoint land here,
// so out-of-order delivery between the two is resolved by transition
// legality, not arrival order.
func (m *Manager) ApplyProviderStatus(id string, st provider.Status) (session.CallSession, error) {
	mapped, known := MapProviderStatus(st.Status)
	now := m.clock().UTC()

	sess, err := m.store.Update(id, func(s *session.CallSession) error {
		s.LastStatusAt = now
		s.PollFailures = 0
		if st.DurationSeconds > 0 {
			s.DurationSeconds = st.DurationSeconds
		}
		if st.StartTime != nil {
			s.StartTime = st.StartTime
		}
		if st.EndTime != nil {
			s.EndTime = st.EndTime
		}
		if known && mapped != s.State {
			s.State = mapped
			if mapped == session.StateFailed {
				s.LastError = st.Status
			}
		}
		return nil
	})
	if errors.Is(err, session.ErrStaleTransition) {
		// Out-of-order observation; the stored session stays authoritative.
		m.log.Debug("stale status observation discarded", "call_id", id, "reported", st.Status)
		return sess, nil
	}
	if err != nil {
		return sess, err
	}
	if !known {
		m.log.Warn("unknown provider status", "call_id", id, "status", st.Status)
	}
	return sess, nil
}

// MapProviderStatus translates the provider status vocabulary into the
// internal state machine.
func MapProviderStatus(s string) (session.State, bool) {
	switch s {
	case "queued", "initiated", "trying":
		return session.StateInitiating, true
	case "ringing", "answered", "active", "in_progress", "in-progress", "connected":
		return session.StateActive, true
	case "ended", "completed", "hangup", "canceled":
		return session.StateEnded, true
	case "failed", "busy", "no_answer", "no-answer", "rejected", "error":
		return session.StateFailed, true
	default:
		return "", false
	}
}
