package attendance

import (
	"errors"
	"fmt"
)

// Validation errors. Operations returning them leave both layers untouched.
var (
	ErrInvalidDate         = errors.New("date is after today")
	ErrNotEditable         = errors.New("attendance is not editable")
	ErrEmptyCommit         = errors.New("no staged attendance to commit")
	ErrRemarksRequired     = errors.New("remarks are required for late or excused attendance")
	ErrInvalidStatus       = errors.New("invalid attendance status")
	ErrCommitInProgress    = errors.New("a commit is already in progress")
	ErrUnknownRegistration = errors.New("unknown registration")
	ErrNoPendingSelection  = errors.New("no status is waiting for remarks")
)

// TransportError wraps a failure talking to the remote attendance service.
// Commits are all-or-nothing, so it carries no per-record outcome.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func transportError(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
