package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client defines the provider-agnostic interface used by the call lifecycle
// engine.
//
// Rules:
// - No provider HTTP details outside provider adapters.
// - Keep request/response types provider-agnostic.
// - Every failure crosses this boundary as a typed *Error, never as an
//   opaque wrapped transport error, so callers can pick retry policy by kind.
type Client interface {
	Name() string

	CreateCall(ctx context.Context, req CreateCallRequest) (CallHandle, error)
	EndCall(ctx context.Context, providerCallID string) error
	SendDigit(ctx context.Context, providerCallID, digit string) error
	GetStatus(ctx context.Context, providerCallID string) (Status, error)
}

// CreateCallRequest asks the provider to originate an outbound call.
type CreateCallRequest struct {
	// To is the dialed number, already validated E.164.
	To string `json:"to"`

	// From is the optional caller id presented to the callee.
	From string `json:"from,omitempty"`

	// CallbackURL, when set, is where the provider pushes status changes.
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// CallHandle identifies a call at the provider after creation.
type CallHandle struct {
	ProviderCallID string `json:"callId"`
	Status         string `json:"status"`
}

// Status is a normalized provider status snapshot.
type Status struct {
	Status          string     `json:"status"`
	DurationSeconds int        `json:"duration,omitempty"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
}

// Kind classifies a provider failure.
type Kind int

const (
	// KindNetwork is a transport-level failure: no provider response at all.
	KindNetwork Kind = iota + 1
	// KindProviderClient is a definitive provider rejection (HTTP 4xx).
	KindProviderClient
	// KindProviderServer is a provider-side failure (HTTP 5xx).
	KindProviderServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProviderClient:
		return "provider_client"
	case KindProviderServer:
		return "provider_server"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is the only error type returned by provider clients.
type Error struct {
	Kind Kind

	// Op names the failed operation (create, end, dtmf, status).
	Op string

	// HTTPStatus is the provider HTTP status, 0 for network failures.
	HTTPStatus int

	Message string

	// Err is the underlying transport error for network failures.
	Err error
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("provider: %s failed (%s, http %d): %s", e.Op, e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("provider: %s failed (%s): %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a provider *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsNetwork reports whether err is a transport-level provider failure.
func IsNetwork(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == KindNetwork
}

// IsRejected reports whether the provider definitively rejected the request.
func IsRejected(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == KindProviderClient
}
