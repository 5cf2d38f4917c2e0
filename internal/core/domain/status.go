package domain

import "errors"

// Status is the outcome carried in every response frame.
type Status string

// Wire statuses.
const (
	StatusOK                 Status = "OK"
	StatusNotFound           Status = "NOT_FOUND"
	StatusInvalid            Status = "INVALID"
	StatusIntegrityViolation Status = "INTEGRITY_VIOLATION"
	StatusRateLimited        Status = "RATE_LIMITED"
	StatusError              Status = "ERROR"
)

// argErrors all report as INVALID.
var argErrors = []error{
	ErrInvalidArgument,
	ErrKeyTooLong,
	ErrValueTooLarge,
	ErrDigestMismatch,
	ErrClientIDInUse,
}

// StatusOf maps an error to its wire status. A nil error is OK.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	for _, target := range argErrors {
		if errors.Is(err, target) {
			return StatusInvalid
		}
	}
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return StatusNotFound
	case errors.Is(err, ErrIntegrityViolation):
		return StatusIntegrityViolation
	case errors.Is(err, ErrRateLimited):
		return StatusRateLimited
	default:
		return StatusError
	}
}

// ErrorOf is the inverse of StatusOf for client use: it returns the
// sentinel a non-OK status stands for, carrying msg as details.
func ErrorOf(status Status, msg string) error {
	var base *DomainError
	switch status {
	case StatusOK:
		return nil
	case StatusNotFound:
		base = ErrKeyNotFound
	case StatusInvalid:
		base = ErrInvalidArgument
	case StatusIntegrityViolation:
		base = ErrIntegrityViolation
	case StatusRateLimited:
		base = ErrRateLimited
	case StatusError:
		base = ErrProtocol
	default:
		return ErrProtocol.WithDetails("unknown status " + string(status))
	}
	if msg == "" {
		return base
	}
	return base.WithDetails(msg)
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusNotFound, StatusInvalid, StatusIntegrityViolation, StatusRateLimited, StatusError:
		return true
	}
	return false
}
