package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType classifies failures so callers can decide between aborting the
// run, retrying a single item, or reporting a diagnosis.
type ErrorType string

const (
	// ErrorTypeEnvironment covers unrecoverable setup failures such as an
	// unwritable output directory or a browser that will not start.
	ErrorTypeEnvironment ErrorType = "environment"
	// ErrorTypeNavigation covers page loads and waits that fail inside the
	// browser session.
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeExtraction covers markup that cannot be parsed at all.
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeDownload covers a single image fetch failure.
	ErrorTypeDownload ErrorType = "download"
	// ErrorTypeUpload covers a single image upload failure.
	ErrorTypeUpload ErrorType = "upload"
	// ErrorTypeEmptyResult marks a collection that finished with nothing
	// to show. It is a diagnosis, not a crash.
	ErrorTypeEmptyResult ErrorType = "empty_result"
	// ErrorTypeCancelled marks a run stopped at a checkpoint on request.
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error carries the failure class plus enough context to log it usefully.
type Error struct {
	Type      ErrorType
	Message   string
	URL       string
	Item      string
	Code      int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given type. Download and upload errors default
// to retryable; everything else does not.
func New(t ErrorType, message string) *Error {
	return &Error{
		Type:      t,
		Message:   message,
		Retryable: t == ErrorTypeDownload || t == ErrorTypeUpload,
	}
}

// Wrap attaches a cause to a new typed error.
func Wrap(t ErrorType, message string, err error) *Error {
	e := New(t, message)
	e.Err = err
	return e
}

// NewWithURL tags the error with the URL it concerns.
func NewWithURL(t ErrorType, message, url string) *Error {
	e := New(t, message)
	e.URL = url
	return e
}

// WithItem tags the error with the item title it concerns.
func (e *Error) WithItem(item string) *Error {
	e.Item = item
	return e
}

// WithCode records the HTTP status behind the error and reclassifies
// retryability from it.
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	if e.Type == ErrorTypeDownload || e.Type == ErrorTypeUpload {
		e.Retryable = IsRetryableStatusCode(code)
	}
	return e
}

// NotRetryable marks the error as final regardless of its type.
func (e *Error) NotRetryable() *Error {
	e.Retryable = false
	return e
}

// TypeOf extracts the ErrorType from err, or "" when err is not ours.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsRetryable reports whether err is worth another attempt. Unknown error
// values are treated as transient so plain network failures get their
// bounded retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// IsCancelled reports whether err means the run was stopped on request.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if TypeOf(err) == ErrorTypeCancelled {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// IsEnvironment reports whether err is fatal for the whole run.
func IsEnvironment(err error) bool {
	return TypeOf(err) == ErrorTypeEnvironment
}

// IsEmptyResult reports whether err is the zero-images diagnosis.
func IsEmptyResult(err error) bool {
	return TypeOf(err) == ErrorTypeEmptyResult
}

// IsRetryableStatusCode classifies an HTTP status for per-item retries.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // network error, no response
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 400, 401, 403, 404, 410:
		return false
	default:
		return statusCode >= 500
	}
}
