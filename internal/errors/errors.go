package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error classes surfaced by the backend client
var (
	ErrNetwork = errors.New("network error") // no response was received
	ErrClient  = errors.New("client error")  // 4xx other than an unresolved 401
	ErrServer  = errors.New("server error")  // 5xx

	// Session errors
	ErrRefreshFailed   = errors.New("refresh failed")
	ErrSessionExpired  = errors.New("session expired")
	ErrUnauthenticated = errors.New("unauthenticated")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// StatusError is a non-2xx response from the backend. It unwraps to ErrClient or
// ErrServer depending on the status class.
type StatusError struct {
	Status  int
	Title   string
	Message string
	Method  string
	Path    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, msg)
}

func (e *StatusError) Unwrap() error {
	if e.Status >= http.StatusInternalServerError {
		return ErrServer
	}
	return ErrClient
}

// sessionError is a session failure. The cause stays in the message, but only the
// session classes and context errors behind it are visible to errors.Is: a lost session
// is never also a ClientError.
type sessionError struct {
	class error
	cause error
}

func (e *sessionError) Error() string {
	return e.class.Error() + ": " + e.cause.Error()
}

func (e *sessionError) Unwrap() []error {
	errs := []error{e.class}
	for _, kept := range []error{ErrRefreshFailed, context.Canceled, context.DeadlineExceeded} {
		if kept != e.class && errors.Is(e.cause, kept) {
			errs = append(errs, kept)
		}
	}
	return errs
}

// Session files cause under class (ErrRefreshFailed or ErrSessionExpired)
func Session(class, cause error) error {
	if cause == nil {
		return class
	}
	return &sessionError{class: class, cause: cause}
}

// StatusCode returns the HTTP status carried by err, or 0 if there is none
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// UserMessage returns the backend supplied message for err if there is one
func UserMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return ""
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
