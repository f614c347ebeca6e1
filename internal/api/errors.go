package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed classification of a failed remote call. Every failure
// surfaced by the client facade carries exactly one kind; callers decide
// retry behavior from the Retryable flag, never from raw status codes.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindRateLimited Kind = "rate_limited"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindUnknown     Kind = "unknown"
)

// classify maps an HTTP status to a kind. Anything outside the known set,
// including 5xx, lands in unknown.
func classify(status int) Kind {
	switch status {
	case http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	}
	return KindUnknown
}

// retryable reports whether automatic bounded retry is permitted for a kind.
// Validation, forbidden and not-found require user action and must surface
// directly.
func retryable(k Kind) bool {
	switch k {
	case KindConflict, KindRateLimited, KindUnknown:
		return true
	}
	return false
}

// Error is a classified remote failure.
type Error struct {
	Kind      Kind
	Status    int // 0 for transport-level failures
	Detail    string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// errorBody is the machine-readable error envelope the backend returns.
// Older endpoints use "details", newer ones "detail"; both are accepted.
type errorBody struct {
	Detail  string `json:"detail"`
	Details string `json:"details"`
}

// newStatusError builds a classified error from a non-2xx response.
func newStatusError(status int, body []byte) *Error {
	kind := classify(status)
	detail := ""
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		detail = eb.Detail
		if detail == "" {
			detail = eb.Details
		}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &Error{
		Kind:      kind,
		Status:    status,
		Detail:    detail,
		Retryable: retryable(kind),
	}
}

// newTransportError wraps a network-level failure as a retryable unknown.
func newTransportError(err error) *Error {
	return &Error{
		Kind:      KindUnknown,
		Detail:    "request failed",
		Retryable: true,
		cause:     err,
	}
}

// KindOf extracts the classification from err, or KindUnknown when err was
// never classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err permits automatic bounded retry.
// Unclassified errors are treated as retryable, matching the unknown row of
// the taxonomy.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return true
}
