// Package extractorerr defines the typed error surface components use
// when crossing a package boundary (queue, dispatcher, worker, ocr). Code
// within a single package keeps wrapping plain errors with fmt.Errorf
// and %w, the way the rest of this module does.
package extractorerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for retry and alerting decisions.
type Kind string

const (
	// KindTransient covers network blips, timeouts, and other failures
	// expected to succeed on retry without operator action.
	KindTransient Kind = "transient"

	// KindCapacity means the call was refused by a rate limiter or
	// capacity manager; the caller should back off and retry later.
	KindCapacity Kind = "capacity"

	// KindPermanent means retrying will not help: malformed input, a
	// document that does not exist, an unsupported job kind.
	KindPermanent Kind = "permanent"

	// KindAuth covers credential or authorization failures against an
	// upstream registry or AI vendor.
	KindAuth Kind = "auth"
)

// Error is the typed error value passed across component boundaries.
type Error struct {
	Kind      Kind
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New wraps cause as an Error of the given kind, with Retryable defaulted
// from the kind (transient and capacity errors are retryable; permanent
// and auth errors are not).
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Retryable: defaultRetryable(kind), Cause: cause}
}

// Wrapf builds an Error from a formatted message.
func Wrapf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Errorf(format, args...))
}

func defaultRetryable(kind Kind) bool {
	switch kind {
	case KindTransient, KindCapacity:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err should be retried, defaulting to true
// for errors that were never classified (matches the
// fail-open posture for unexpected storage errors).
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}

// As returns the typed Error and true if err or one of its wrapped
// causes is an *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
