package remote

import (
	"context"
	"errors"
	"fmt"
)

// Class groups remote failures by how the sync engine must react.
type Class string

const (
	// ClassValidation: the request itself is malformed.
	ClassValidation Class = "validation"
	// ClassConstraint: unique, not-null, check or foreign key violation.
	ClassConstraint Class = "constraint"
	// ClassSchema: missing column, relation or function.
	ClassSchema Class = "schema"
	// ClassAuth: the session is missing or no longer valid.
	ClassAuth Class = "auth"
	// ClassOffline: the backend could not be reached at all.
	ClassOffline Class = "offline"
	// ClassTransient: timeouts, 5xx, rate limiting and anything unknown.
	ClassTransient Class = "transient"
)

// Error is a classified remote failure.
type Error struct {
	Class   Class
	Code    string // backend code, e.g. "23505" or "PGRST204"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Class)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(class Class, code, format string, args ...any) *Error {
	return &Error{Class: class, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err.
func Wrap(class Class, code string, err error) *Error {
	return &Error{Class: class, Code: code, Err: err}
}

// ClassOf returns the class of err. Context deadlines count as transient
// and unclassified errors as transient too.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Class
	}
	return ClassTransient
}

// CodeOf returns the backend code of err, if any.
func CodeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsAuth reports whether err means the session is invalid.
func IsAuth(err error) bool {
	return ClassOf(err) == ClassAuth
}

// IsOffline reports whether err means the backend is unreachable.
func IsOffline(err error) bool {
	return ClassOf(err) == ClassOffline
}

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool {
	return ClassOf(err) == ClassConstraint
}

// IsSchema reports whether err is a schema mismatch.
func IsSchema(err error) bool {
	return ClassOf(err) == ClassSchema
}

// IsTerminal reports whether retrying err can never succeed.
func IsTerminal(err error) bool {
	switch ClassOf(err) {
	case ClassValidation, ClassConstraint, ClassSchema:
		return true
	}
	return false
}

// IsTimeout reports whether err is a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
