// ABOUTME: Typed error taxonomy for the gateway: validation, processing, store, transport
// ABOUTME: KindOf lets callers branch on the failure class instead of message text

package chat

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindProcessing
	KindStore
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProcessing:
		return "processing"
	case KindStore:
		return "store"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// ValidationError reports malformed or missing input. Nothing was changed.
type ValidationError struct {
	Message string
}

// NewValidationError returns a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string { return e.Message }

// ProcessingError wraps a failure raised by the message processor for one turn.
// The session stays usable for the next turn.
type ProcessingError struct {
	SessionID string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing turn for session %s: %v", e.SessionID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// StoreError wraps a config store read or write failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s settings: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// TransportError wraps a duplex connection failure.
type TransportError struct {
	SessionID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport for session %s: %v", e.SessionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// KindOf returns the taxonomy class of err, searching the wrap chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var (
		verr *ValidationError
		perr *ProcessingError
		serr *StoreError
		terr *TransportError
	)
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &perr):
		return KindProcessing
	case errors.As(err, &serr):
		return KindStore
	case errors.As(err, &terr):
		return KindTransport
	default:
		return KindUnknown
	}
}

// Retryable reports whether repeating the same request may succeed.
// Validation failures are terminal; processing and store failures may be transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProcessing, KindStore:
		return true
	default:
		return false
	}
}
