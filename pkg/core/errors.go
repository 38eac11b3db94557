package core

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures for recovery decisions.
type ErrorKind string

const (
	// KindQuota means the remote endpoint is capacity- or billing-limited.
	// The session should advance to the next fallback model.
	KindQuota ErrorKind = "quota"
	// KindTransient means a recoverable hiccup (network blip, 5xx).
	// The same model may be retried with backoff.
	KindTransient ErrorKind = "transient"
	// KindFatal means the session cannot succeed (bad credentials,
	// malformed setup). No retry.
	KindFatal ErrorKind = "fatal"
	// KindDisconnected means an established connection dropped mid-session.
	KindDisconnected ErrorKind = "disconnected"
	// KindDeviceUnavailable means local capture/playback hardware is
	// missing or busy. Degrades the affected mode, never the session.
	KindDeviceUnavailable ErrorKind = "device_unavailable"
)

// Error is the typed error exchanged between the transport, the device
// adapters, and the session orchestrator.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	// Model identifies the endpoint a transport error refers to, if any.
	Model string `json:"model,omitempty"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: %s (model: %s)", e.Kind, e.Message, e.Model)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewQuotaError creates a quota exhaustion error for the given model.
func NewQuotaError(model string, err error) *Error {
	return &Error{Kind: KindQuota, Message: "quota exceeded", Model: model, Err: err}
}

// NewTransientError creates a retryable transport error.
func NewTransientError(message string, err error) *Error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// NewFatalError creates a terminal, non-retryable error.
func NewFatalError(message string, err error) *Error {
	return &Error{Kind: KindFatal, Message: message, Err: err}
}

// NewDisconnectedError creates a mid-session connection loss error.
func NewDisconnectedError(message string, err error) *Error {
	return &Error{Kind: KindDisconnected, Message: message, Err: err}
}

// NewDeviceUnavailableError creates a local device failure error.
func NewDeviceUnavailableError(device string, err error) *Error {
	return &Error{Kind: KindDeviceUnavailable, Message: device + " unavailable", Err: err}
}

// KindOf extracts the ErrorKind from an error chain.
// Unclassified errors are reported as transient: the orchestrator's
// bounded retry policy keeps that conservative default from looping.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsRetryable returns true if the same endpoint may be retried.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindTransient, KindDisconnected:
		return true
	default:
		return false
	}
}
