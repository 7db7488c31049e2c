// Package apierr defines the single error contract shared by every component
// that talks to the portal backend. The backend does not agree with itself
// about error envelopes (FastAPI validation arrays, plain detail strings,
// nested errors objects), so callers only ever see an *Error with a non-empty
// Message and, where the backend supplied one, a machine-readable Code.
package apierr

import (
	"errors"
	"fmt"
)

// Well-known machine codes raised by this module itself (as opposed to codes
// passed through from the backend's error_code field).
const (
	// CodeInvalidAPIResponse marks a 2xx response whose body was an HTML
	// document instead of JSON: the backend is misrouted or down, which must
	// not be confused with "user has no session".
	CodeInvalidAPIResponse = "INVALID_API_RESPONSE"

	// CodeExchangeTimeout marks a callback exchange that did not settle
	// within the configured bound.
	CodeExchangeTimeout = "EXCHANGE_TIMEOUT"
)

// Error is the normalized error shape raised by the transport and the
// exchange coordinator. Message is always non-empty. Status is zero for
// transport-level failures that never produced an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details any

	cause error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with an explicit status, code and message. An empty
// message is replaced with a generic one so the Message invariant holds even
// for carelessly constructed errors.
func New(status int, code string, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("Request failed with status %d", status)
	}
	return &Error{Status: status, Code: code, Message: message}
}

// Wrap builds an Error around an underlying cause (typically a net/http or
// context error) with no HTTP status. errors.Is/As see through to the cause.
func Wrap(message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Message: message, cause: cause}
}

// FromPayload normalizes a non-2xx response body into an Error. The message
// is the normalized body text, or a generic "Request failed with status N"
// when the body yields nothing. When the body is an object carrying an
// error_code field, that becomes the Code.
func FromPayload(status int, body any) *Error {
	msg := Normalize(body)
	if msg == "" {
		msg = fmt.Sprintf("Request failed with status %d", status)
	}
	e := &Error{Status: status, Message: msg, Details: body}
	if obj, ok := body.(map[string]any); ok {
		if code, ok := obj["error_code"].(string); ok {
			e.Code = code
		}
	}
	return e
}

// IsTimeout reports whether err is an exchange timeout.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeExchangeTimeout
}

// IsInvalidAPIResponse reports whether err marks a malformed success response
// (HTML where JSON was expected).
func IsInvalidAPIResponse(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeInvalidAPIResponse
}
