package session

import "time"

// CallSession is the internal record of one call's lifecycle.
//
// Invariants:
// - ID is the provider-assigned call id; it is never reused across sessions.
// - State only moves forward along validTransitions.
// - A terminal session is immutable and eligible for eviction once the
//   retention window passes.
//
// All mutation goes through Store.Update; nothing else may write a session.
type CallSession struct {
	ID string `json:"call_id"`

	State State `json:"status"`

	// Destination is the dialed number (E.164).
	Destination string `json:"destination"`
	// CallerID is the optional originating number.
	CallerID string `json:"caller_id,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastStatusAt time.Time `json:"last_status_at"`

	// EndRequestedAt is set when the caller asks to end the call; it drives
	// the end-confirmation timeout.
	EndRequestedAt time.Time `json:"end_requested_at,omitempty"`

	// TerminatedAt is set by the store when the session enters a terminal
	// state; it drives retention eviction.
	TerminatedAt time.Time `json:"terminated_at,omitempty"`

	DurationSeconds int        `json:"duration,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`

	// LastError is the last observed failure reason, if any.
	LastError string `json:"last_error,omitempty"`

	// PollFailures counts consecutive transient poll failures. Reset on any
	// successful status observation.
	PollFailures int `json:"-"`
}
