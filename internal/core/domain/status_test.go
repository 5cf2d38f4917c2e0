package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOK},
		{"not found", ErrKeyNotFound, StatusNotFound},
		{"invalid", ErrInvalidArgument.WithDetails("empty key"), StatusInvalid},
		{"key too long", ErrKeyTooLong, StatusInvalid},
		{"value too large", ErrValueTooLarge, StatusInvalid},
		{"digest mismatch", ErrDigestMismatch, StatusInvalid},
		{"client id in use", ErrClientIDInUse, StatusInvalid},
		{"integrity", fmt.Errorf("get: %w", ErrIntegrityViolation), StatusIntegrityViolation},
		{"rate limited", ErrRateLimited, StatusRateLimited},
		{"protocol", ErrProtocol, StatusError},
		{"storage", ErrStorage, StatusError},
		{"plain error", errors.New("boom"), StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestErrorOf(t *testing.T) {
	if err := ErrorOf(StatusOK, "ignored"); err != nil {
		t.Errorf("ErrorOf(OK) = %v, want nil", err)
	}

	statuses := []Status{StatusNotFound, StatusInvalid, StatusIntegrityViolation, StatusRateLimited, StatusError}
	for _, s := range statuses {
		err := ErrorOf(s, "detail")
		if err == nil {
			t.Fatalf("ErrorOf(%s) = nil", s)
		}
		if got := StatusOf(err); got != s {
			t.Errorf("StatusOf(ErrorOf(%s)) = %s", s, got)
		}
	}

	if !errors.Is(ErrorOf("BOGUS", ""), ErrProtocol) {
		t.Error("unknown status should map to ErrProtocol")
	}
}

func TestStatus_Valid(t *testing.T) {
	if !StatusRateLimited.Valid() {
		t.Error("RATE_LIMITED should be valid")
	}
	if Status("PONG").Valid() {
		t.Error("PONG should not be a valid status")
	}
}
