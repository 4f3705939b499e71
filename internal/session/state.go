package session

// State is the lifecycle state of a call session.
type State string

const (
	// StateInitiating means the provider accepted the create request and the
	// call is being set up.
	StateInitiating State = "initiating"
	// StateActive means the call is ringing or connected.
	StateActive State = "active"
	// StateEnding means the caller asked to end the call and provider
	// confirmation is pending.
	StateEnding State = "ending"
	// StateEnded is terminal: the call finished normally.
	StateEnded State = "ended"
	// StateFailed is terminal: the call could not be completed.
	StateFailed State = "failed"
)

// validTransitions defines which state transitions are allowed.
// Transitions only move forward; a terminal session never leaves its state.
var validTransitions = map[State][]State{
	StateInitiating: {StateActive, StateEnding, StateEnded, StateFailed},
	StateActive:     {StateEnding, StateEnded, StateFailed},
	StateEnding:     {StateEnded, StateFailed},
	StateEnded:      {},
	StateFailed:     {},
}

// CanTransitionTo checks if a transition from s to next is valid.
func (s State) CanTransitionTo(next State) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateFailed
}
