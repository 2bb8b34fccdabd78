package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEventKind        = errors.New("invalid event kind")
	ErrInvalidEvent            = errors.New("invalid event")
	ErrSignalUnavailable       = errors.New("signal unavailable")
	ErrReputationContention    = errors.New("reputation store contention")
	ErrScoringFailed           = errors.New("scoring failed")
	ErrInvalidEntityType       = errors.New("invalid entity type")
	ErrInvalidActivityFilter   = errors.New("invalid activity filter")
	ErrIdempotencyKeyProcessed = errors.New("idempotency key already processed")
)

// SignalError marks a single degraded scoring signal. It unwraps to
// ErrSignalUnavailable so callers can keep scoring with reduced confidence.
type SignalError struct {
	Signal string
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("signal %s unavailable: %v", e.Signal, e.Err)
}

func (e *SignalError) Unwrap() []error {
	return []error{ErrSignalUnavailable, e.Err}
}

func NewSignalError(signal string, err error) error {
	return &SignalError{Signal: signal, Err: err}
}

// ScoringError is fatal for one event only.
type ScoringError struct {
	EventID string
	Stage   string
	Err     error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring event %s failed at %s: %v", e.EventID, e.Stage, e.Err)
}

func (e *ScoringError) Unwrap() []error {
	return []error{ErrScoringFailed, e.Err}
}

func NewScoringError(eventID, stage string, err error) error {
	return &ScoringError{EventID: eventID, Stage: stage, Err: err}
}
