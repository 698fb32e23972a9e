// Package apierror defines the failure taxonomy shared by the request path,
// the retry executor, the pagination drivers and the batch runner.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Class represents a classification of request failures.
type Class string

const (
	// ClassTransport represents network-level failures (connection reset, DNS, TLS).
	ClassTransport Class = "transport"

	// ClassServer represents 5xx server failures.
	ClassServer Class = "server"

	// ClassRateLimit represents 429 rate limit responses.
	ClassRateLimit Class = "rate_limit"

	// ClassClient represents 4xx client failures other than rate limiting.
	ClassClient Class = "client"

	// ClassValidation represents a payload that does not match the expected shape.
	ClassValidation Class = "validation"

	// ClassCancelled represents an operation stopped by its cancellation signal.
	ClassCancelled Class = "cancelled"
)

// Common errors for errors.Is checks.
var (
	// ErrCancelled matches every cancellation-class failure.
	ErrCancelled = errors.New("operation cancelled")

	// ErrValidation matches every validation-class failure.
	ErrValidation = errors.New("payload validation failed")
)

// Error represents a classified API failure with additional context.
type Error struct {
	StatusCode int
	Class      Class
	Message    string

	// RetryAfter is the server-advertised wait before the next attempt, if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	status := ""
	if e.StatusCode > 0 {
		status = fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		if e.Message == "" {
			return fmt.Sprintf("api %s error%s: %v", e.Class, status, e.Err)
		}
		return fmt.Sprintf("api %s error%s: %s: %v", e.Class, status, e.Message, e.Err)
	}
	return fmt.Sprintf("api %s error%s: %s", e.Class, status, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the class sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrCancelled:
		return e.Class == ClassCancelled
	case ErrValidation:
		return e.Class == ClassValidation
	}
	return false
}

// ClassForStatus maps an HTTP status code to a failure class.
// Returns an empty class for non-error statuses.
func ClassForStatus(status int) Class {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRateLimit
	case status >= 400 && status < 500:
		return ClassClient
	case status >= 500:
		return ClassServer
	default:
		return ""
	}
}

// FromStatus builds an error for a non-2xx response. The Retry-After header,
// when present on the response, is carried on the error.
func FromStatus(status int, message string, header http.Header) *Error {
	e := &Error{
		StatusCode: status,
		Class:      ClassForStatus(status),
		Message:    message,
	}
	if e.Class == "" {
		e.Class = ClassServer
	}
	if header != nil {
		e.RetryAfter = ParseRetryAfter(header.Get("Retry-After"), time.Now())
	}
	return e
}

// Transport wraps a network-level failure.
func Transport(err error) *Error {
	return &Error{Class: ClassTransport, Message: "request failed", Err: err}
}

// Validation wraps a payload shape mismatch.
func Validation(err error) *Error {
	return &Error{Class: ClassValidation, Message: "unexpected payload", Err: err}
}

// Cancelled wraps the cause reported by an aborted cancellation signal.
func Cancelled(cause error) *Error {
	if cause == nil {
		cause = context.Canceled
	}
	return &Error{Class: ClassCancelled, Message: "operation stopped", Err: cause}
}

// ClassOf classifies any error. Errors that are not *Error are treated as
// transport failures unless they carry a context cancellation.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCancelled
	}
	return ClassTransport
}

// Retryable reports whether a failure should be re-attempted.
func Retryable(err error) bool {
	return ClassRetryable(ClassOf(err))
}

// ClassRetryable reports whether a failure class should be re-attempted.
func ClassRetryable(class Class) bool {
	switch class {
	case ClassTransport, ClassServer, ClassRateLimit:
		return true
	default:
		// client errors burn quota without a chance of success
		return false
	}
}

// RetryAfterOf returns the server-advertised wait carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// ParseRetryAfter parses a Retry-After header value in either delta-seconds
// or HTTP-date form. Returns 0 when the value is empty, invalid or in the past.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}
