package sync

import (
	"fmt"
)

// Error is a tick failure together with the outcome it produced
type Error struct {
	Err     error
	Message string
	Outcome Outcome
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(outcome Outcome, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Error{Err: err, Message: msg, Outcome: outcome}
}

// PanicError wraps a value recovered from a panic in plugin code
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// recoverInto turns a panic into an error assigned to *errp
func recoverInto(errp *error) {
	if r := recover(); r != nil {
		*errp = &PanicError{Value: r}
	}
}
