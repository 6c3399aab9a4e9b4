package shift

import (
	"errors"
	"fmt"
)

// Error is a stable, machine-readable ledger error. Two errors match under
// errors.Is when their codes match.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithMessage returns a new Error with the same Code and a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrAlreadyActive    = &Error{Code: "ALREADY_ACTIVE", Message: "You already have an active shift"}
	ErrNoActiveShift    = &Error{Code: "NO_ACTIVE_SHIFT", Message: "No active shift found"}
	ErrBreakAlreadyOpen = &Error{Code: "BREAK_ALREADY_OPEN", Message: "A break is already in progress"}
	ErrNoOpenBreak      = &Error{Code: "NO_OPEN_BREAK", Message: "No break in progress"}
	ErrInvalidBreakType = &Error{Code: "INVALID_BREAK_TYPE", Message: "Break type must be 'break' or 'lunch'"}
	ErrInvalidPhotoSlot = &Error{Code: "INVALID_PHOTO_SLOT", Message: "Photo slot must be 'checkInPhoto' or 'checkOutPhoto'"}
	ErrShiftNotFound    = &Error{Code: "SHIFT_NOT_FOUND", Message: "Shift not found"}
	ErrMissingIdentity  = &Error{Code: "MISSING_IDENTITY", Message: "A resolved user is required"}
	ErrInvalidRequest   = &Error{Code: "INVALID_REQUEST", Message: "Invalid request"}
)

// IsStateViolation reports whether err is one of the expected, user-facing
// lifecycle errors rather than an infrastructure failure.
func IsStateViolation(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
