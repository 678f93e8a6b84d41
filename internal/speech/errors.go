package speech

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by an attempt wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrConfig     = errors.New("config error")
	ErrConnection = errors.New("connection error")
	ErrProtocol   = errors.New("protocol error")
	ErrStreamPush = errors.New("stream push error")
	ErrResource   = errors.New("resource error")
)

// Lifecycle errors returned without changing recognizer state.
var (
	ErrAttemptActive    = errors.New("speech: recognition attempt already active")
	ErrNotListening     = errors.New("speech: recognizer is not listening")
	ErrRecognizerClosed = errors.New("speech: recognizer closed")
	ErrSessionClosed    = errors.New("speech: session closed")
	ErrStopInProgress   = errors.New("speech: stop already in progress")
	ErrSessionStopped   = errors.New("speech: session already stopped")
)

// Error carries the kind of a failure, the operation that produced it and
// the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation. An err that already is an
// *Error is returned unchanged.
func NewError(kind error, op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("speech: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("speech: %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the kind of err, or nil when err is not a speech error.
func KindOf(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return nil
}
