// Package domain defines the core domain rules for vaultkv.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes follow the format VK-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "VK-KEY-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Request shape errors (ARG).
var (
	// ErrInvalidArgument indicates a key, value or digest of the wrong shape.
	ErrInvalidArgument = NewDomainError("VK-ARG-4000", "invalid argument")

	// ErrKeyTooLong indicates a key over the configured length bound.
	ErrKeyTooLong = NewDomainError("VK-ARG-4001", "key too long")

	// ErrValueTooLarge indicates a value over the configured size bound.
	ErrValueTooLarge = NewDomainError("VK-ARG-4002", "value too large")

	// ErrDigestMismatch indicates a client-supplied digest that does not
	// match the value it accompanied.
	ErrDigestMismatch = NewDomainError("VK-ARG-4003", "digest mismatch")
)

// Lookup errors (KEY).
var (
	// ErrKeyNotFound indicates the key is absent. It is a normal query
	// outcome rather than a failure.
	ErrKeyNotFound = NewDomainError("VK-KEY-4040", "key not found")
)

// Integrity errors (INTG).
var (
	// ErrIntegrityViolation indicates a stored value failed re-verification.
	ErrIntegrityViolation = NewDomainError("VK-INTG-5001", "integrity violation")
)

// Admission errors (RATE).
var (
	// ErrRateLimited indicates the request was denied by the rate limiter.
	ErrRateLimited = NewDomainError("VK-RATE-4290", "rate limit exceeded")
)

// Protocol and connection errors (PROTO, CONN).
var (
	// ErrProtocol indicates a malformed frame or a failed handshake.
	// It is fatal to the connection only.
	ErrProtocol = NewDomainError("VK-PROTO-4000", "protocol error")

	// ErrUnknownOp indicates a frame naming an operation that does not exist.
	ErrUnknownOp = NewDomainError("VK-PROTO-4001", "unknown operation")

	// ErrClientIDInUse indicates a HELLO with an ID held by a live session.
	ErrClientIDInUse = NewDomainError("VK-CONN-4090", "client id already in use")
)

// System errors (SYS).
var (
	// ErrInternal indicates an unexpected server-side failure.
	ErrInternal = NewDomainError("VK-SYS-5000", "internal error")

	// ErrStorage indicates the durable backend rejected a write.
	ErrStorage = NewDomainError("VK-SYS-5001", "storage error")
)
