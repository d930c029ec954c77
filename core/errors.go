package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes SDK errors.
type ErrorType string

const (
	ErrTypeConfiguration    ErrorType = "configuration_error"
	ErrTypeAuthentication   ErrorType = "authentication_error"
	ErrTypeValidationFailed ErrorType = "validation_failed"
	ErrTypeAlreadyActive    ErrorType = "already_active"
	ErrTypeNotConnected     ErrorType = "not_connected"
	ErrTypeTransport        ErrorType = "transport_error"
	ErrTypeRequestFailed    ErrorType = "request_failed"
)

// Sentinels for errors.Is. Matching compares Type only.
var (
	ErrConfiguration    = &Error{Type: ErrTypeConfiguration}
	ErrAuthentication   = &Error{Type: ErrTypeAuthentication}
	ErrValidationFailed = &Error{Type: ErrTypeValidationFailed}
	ErrAlreadyActive    = &Error{Type: ErrTypeAlreadyActive}
	ErrNotConnected     = &Error{Type: ErrTypeNotConnected}
	ErrTransport        = &Error{Type: ErrTypeTransport}
	ErrRequestFailed    = &Error{Type: ErrTypeRequestFailed}
)

// FieldError is one entry of a structured validation failure returned by the API.
type FieldError struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

func (f FieldError) String() string {
	if len(f.Path) == 0 {
		return f.Message
	}
	return strings.Join(f.Path, ".") + ": " + f.Message
}

// Error is the error type returned by every package of the SDK.
type Error struct {
	Type       ErrorType
	Message    string
	Code       string       // machine code from the API envelope, when present
	Reason     string       // validation reason (e.g. insufficient_credits)
	StatusCode int          // HTTP status, zero for local failures
	Fields     []FieldError // structured validation details
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.Err != nil && !strings.Contains(msg, e.Err.Error()) {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same Type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Type == e.Type
}

// TypeOf returns the ErrorType of err, or "" when err is not an SDK error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

func NewConfigurationError(message string) *Error {
	return &Error{Type: ErrTypeConfiguration, Message: message}
}

func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrTypeAuthentication, Message: message, StatusCode: 401}
}

// NewValidationFailedError reports a session request the backend refused
// (insufficient credits, agent not deployed, ...). The message always contains reason.
func NewValidationFailedError(reason, detail string) *Error {
	message := "Call validation failed: " + reason
	if detail != "" && detail != reason {
		message += " (" + detail + ")"
	}
	return &Error{Type: ErrTypeValidationFailed, Message: message, Reason: reason, Code: "CALL_VALIDATION_FAILED", StatusCode: 403}
}

func NewAlreadyActiveError() *Error {
	return &Error{Type: ErrTypeAlreadyActive, Message: "already connected or connecting"}
}

func NewNotConnectedError() *Error {
	return &Error{Type: ErrTypeNotConnected, Message: "Not connected"}
}

// NewTransportError wraps a media transport failure.
func NewTransportError(op string, err error) *Error {
	return &Error{Type: ErrTypeTransport, Message: op, Err: err}
}

func NewRequestFailedError(status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("Request failed with status %d", status)
	}
	return &Error{Type: ErrTypeRequestFailed, Message: message, StatusCode: status}
}
