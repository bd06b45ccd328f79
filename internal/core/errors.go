// Package core provides the domain types, cache key catalogue and error
// taxonomy shared by the cache store and the request coordinator.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeConnectivity indicates there is no network or the client is offline
	ErrorTypeConnectivity ErrorType = "connectivity_error"
	// ErrorTypeConfiguration indicates the endpoint is not configured
	ErrorTypeConfiguration ErrorType = "configuration_error"
	// ErrorTypeTransport indicates a non-success HTTP status or an unparseable response
	ErrorTypeTransport ErrorType = "transport_error"
	// ErrorTypeApplication indicates the endpoint answered with success:false
	ErrorTypeApplication ErrorType = "application_error"
	// ErrorTypeNotFound indicates the equipment or category does not exist
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeConflict indicates the equipment is already borrowed
	ErrorTypeConflict ErrorType = "conflict_error"
	// ErrorTypeState indicates the equipment is not in the state the operation needs
	ErrorTypeState ErrorType = "state_error"
)

// Sentinels for errors.Is matching by type.
var (
	ErrConnectivity  = &Error{Type: ErrorTypeConnectivity}
	ErrConfiguration = &Error{Type: ErrorTypeConfiguration}
	ErrTransport     = &Error{Type: ErrorTypeTransport}
	ErrApplication   = &Error{Type: ErrorTypeApplication}
	ErrNotFound      = &Error{Type: ErrorTypeNotFound}
	ErrConflict      = &Error{Type: ErrorTypeConflict}
	ErrState         = &Error{Type: ErrorTypeState}
)

// Error is the base error type for everything the coordinator surfaces.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	// Original error for debugging
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// ToJSON converts the error to a JSON-compatible map
func (e *Error) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// TypeOf returns the ErrorType of err, or "" if err is not an *Error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsNetworkFailure reports whether err signals that the endpoint could not be
// reached or answered at the HTTP level. Application-level refusals are not
// network failures.
func IsNetworkFailure(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeConnectivity, ErrorTypeTransport:
		return true
	}
	return false
}

// NewConnectivityError creates a new connectivity error
func NewConnectivityError(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeConnectivity,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string) *Error {
	return &Error{
		Type:    ErrorTypeConfiguration,
		Message: message,
	}
}

// NewTransportError creates a new transport error.
// statusCode is 0 when the failure happened before a response was read.
func NewTransportError(statusCode int, message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeTransport,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewHTTPStatusError creates a transport error for a non-success HTTP status.
func NewHTTPStatusError(statusCode int) *Error {
	return NewTransportError(statusCode, fmt.Sprintf("HTTP %d: %s", statusCode, http.StatusText(statusCode)), nil)
}

// NewApplicationError creates a new application error (success:false)
func NewApplicationError(message string) *Error {
	if message == "" {
		message = "unknown server error"
	}
	return &Error{
		Type:    ErrorTypeApplication,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *Error {
	return &Error{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewStateError creates a new state error
func NewStateError(message string) *Error {
	return &Error{
		Type:    ErrorTypeState,
		Message: message,
	}
}
