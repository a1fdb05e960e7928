package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"captioner/pkg/models"
)

// Kind is the failure taxonomy every backend classifies its errors into
type Kind string

const (
	// KindCorrupt means the photo itself is unusable. Never retried automatically.
	KindCorrupt Kind = "corrupt"
	// KindCapability means the caption service failed (network, quota, auth)
	KindCapability Kind = "capability"
	// KindProcessing means the backend ran but produced nothing usable
	KindProcessing Kind = "processing"
)

// Error is a classified failure
type Error struct {
	Kind Kind
	Op   string
	// Code is the HTTP status when the failure came from a remote service, 0 otherwise
	Code int
	// Temporary marks failures worth retrying inside the backend
	Temporary bool
	// RetryAfter is the server-requested delay, if any
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error in %s (code %d): %s", e.Kind, e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Corrupt classifies err as an unusable input
func Corrupt(op string, err error) error {
	return &Error{Kind: KindCorrupt, Op: op, Err: err}
}

// Capability classifies err as a caption service failure
func Capability(op string, err error) error {
	return &Error{Kind: KindCapability, Op: op, Err: err}
}

// Processing classifies err as a backend that ran without usable output
func Processing(op string, err error) error {
	return &Error{Kind: KindProcessing, Op: op, Err: err}
}

// FromStatusCode builds a capability error for a non-2xx HTTP response
func FromStatusCode(op string, code int, body string) *Error {
	return &Error{
		Kind:      KindCapability,
		Op:        op,
		Code:      code,
		Temporary: IsRetryableStatusCode(code),
		Err:       fmt.Errorf("%s: %s", http.StatusText(code), truncate(body, 200)),
	}
}

// KindOf returns the classification of err. Unclassified errors are processing faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessing
}

// StatusOf maps an error onto the journal status it should be recorded with
func StatusOf(err error) models.Status {
	if err == nil {
		return models.StatusSuccess
	}
	switch KindOf(err) {
	case KindCorrupt:
		return models.StatusErrorCorrupt
	case KindCapability:
		return models.StatusErrorCapability
	default:
		return models.StatusErrorProcessing
	}
}

// IsTemporary reports whether err is a classified failure marked as retryable
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary
	}
	return false
}

// RetryAfterOf returns the server-requested delay carried by err, if any
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	default:
		return statusCode >= 500
	}
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
