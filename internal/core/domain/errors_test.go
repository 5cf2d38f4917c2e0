package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("VK-TEST-1000", "test message"),
			expected: "[VK-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("VK-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[VK-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("VK-TEST-1000", "message 1")
	err2 := NewDomainError("VK-TEST-1000", "message 2")
	err3 := NewDomainError("VK-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}

	// details do not change identity
	if !errors.Is(ErrKeyNotFound.WithDetails("k"), ErrKeyNotFound) {
		t.Error("WithDetails copy should still match its sentinel")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := NewDomainError("VK-TEST-1000", "wrapper").WithCause(cause)

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
	if errors.Unwrap(NewDomainError("VK-TEST-1000", "no cause")) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_CopiesDoNotMutateSentinel(t *testing.T) {
	_ = ErrStorage.WithDetails("disk full").WithCause(errors.New("enospc"))

	if ErrStorage.Details != "" || ErrStorage.Cause != nil {
		t.Errorf("sentinel modified: %+v", ErrStorage)
	}
}

func TestIsDomainError(t *testing.T) {
	if !IsDomainError(ErrKeyNotFound, "VK-KEY-4040") {
		t.Error("IsDomainError should return true for matching code")
	}
	if IsDomainError(ErrKeyNotFound, "VK-KEY-9999") {
		t.Error("IsDomainError should return false for non-matching code")
	}
	if IsDomainError(fmt.Errorf("regular error"), "") {
		t.Error("IsDomainError should return false for non-DomainError")
	}
	wrapped := fmt.Errorf("wrapped: %w", ErrIntegrityViolation)
	if !IsDomainError(wrapped, "VK-INTG-5001") {
		t.Error("IsDomainError should work with wrapped errors")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrRateLimited, "VK-RATE-4290"},
		{"wrapped domain error", fmt.Errorf("wrapped: %w", ErrProtocol), "VK-PROTO-4000"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err  *DomainError
		code string
	}{
		{ErrInvalidArgument, "VK-ARG-4000"},
		{ErrKeyTooLong, "VK-ARG-4001"},
		{ErrValueTooLarge, "VK-ARG-4002"},
		{ErrDigestMismatch, "VK-ARG-4003"},
		{ErrKeyNotFound, "VK-KEY-4040"},
		{ErrIntegrityViolation, "VK-INTG-5001"},
		{ErrRateLimited, "VK-RATE-4290"},
		{ErrProtocol, "VK-PROTO-4000"},
		{ErrUnknownOp, "VK-PROTO-4001"},
		{ErrClientIDInUse, "VK-CONN-4090"},
		{ErrInternal, "VK-SYS-5000"},
		{ErrStorage, "VK-SYS-5001"},
	}

	seen := make(map[string]bool)
	for _, tt := range tests {
		if tt.err.Code != tt.code {
			t.Errorf("%s: Code = %q, want %q", tt.err.Message, tt.err.Code, tt.code)
		}
		if seen[tt.code] {
			t.Errorf("duplicate code %s", tt.code)
		}
		seen[tt.code] = true
	}
}
