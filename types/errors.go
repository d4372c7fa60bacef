package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned by send attempts while the session is not in
// the Connected state. The dispatcher treats it as retryable.
var ErrNotConnected = errors.New("whatsapp is not connected")

// ErrNoSession is returned by logout when there is no active session.
var ErrNoSession = errors.New("no active session found")

// ValidationError marks malformed input. It is rejected at the boundary and
// never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RateLimitedError is returned by the admission gate. RetryAfter equals the
// category's window length.
type RateLimitedError struct {
	Category   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Category, e.RetryAfter)
}

// SendTimeoutError is the terminal error when every dispatch attempt timed
// out.
type SendTimeoutError struct {
	Attempts int
}

func (e *SendTimeoutError) Error() string {
	return fmt.Sprintf("message send timeout after %d attempts", e.Attempts)
}
