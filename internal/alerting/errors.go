package alerting

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a notification, rule or preference row does not exist
	// or is not owned by the caller.
	ErrNotFound = errors.New("alerting: not found")

	// ErrPermanent marks a channel failure that must not be retried. Senders wrap it,
	// and the dispatcher records the attempt as bounced.
	ErrPermanent = errors.New("alerting: permanent delivery failure")

	// ErrDuplicateRule is returned when a rule with the same name already exists.
	ErrDuplicateRule = errors.New("alerting: duplicate rule name")

	// ErrChannelNotConfigured is returned by senders missing a contact or provider.
	ErrChannelNotConfigured = errors.New("alerting: channel not configured")
)

// ValidationError reports malformed input. Nothing is persisted when it is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "alerting: invalid input: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// Permanent wraps err so the dispatcher treats it as a bounce.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }
