package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		maxLen  int
		wantErr error
	}{
		{name: "simple", key: "a", maxLen: 10},
		{name: "mixed charset", key: "user:42/profile@eu-1_v2.json", maxLen: 64},
		{name: "inner space", key: "my key", maxLen: 10},
		{name: "exact limit", key: strings.Repeat("k", 10), maxLen: 10},
		{name: "empty", key: "", maxLen: 10, wantErr: ErrInvalidArgument},
		{name: "too long", key: strings.Repeat("k", 11), maxLen: 10, wantErr: ErrKeyTooLong},
		{name: "blank", key: "   ", maxLen: 10, wantErr: ErrInvalidArgument},
		{name: "newline", key: "a\nb", maxLen: 10, wantErr: ErrInvalidArgument},
		{name: "nul byte", key: "a\x00", maxLen: 10, wantErr: ErrInvalidArgument},
		{name: "non ascii", key: "ключ", maxLen: 64, wantErr: ErrInvalidArgument},
		{name: "default bound", key: strings.Repeat("k", DefaultMaxKeyLen+1), maxLen: 0, wantErr: ErrKeyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key, tt.maxLen)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateKey(%q) error = %v", tt.key, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateKey(%q) error = %v, want %v", tt.key, err, tt.wantErr)
			}
			if StatusOf(err) != StatusInvalid {
				t.Errorf("StatusOf() = %s, want INVALID", StatusOf(err))
			}
		})
	}
}

func TestValidateKey_CaseSensitiveCharset(t *testing.T) {
	if err := ValidateKey("ABCxyz019", 0); err != nil {
		t.Errorf("ValidateKey() error = %v", err)
	}
}

func TestValidateValue(t *testing.T) {
	if err := ValidateValue(make([]byte, 8), 8); err != nil {
		t.Errorf("ValidateValue(at limit) error = %v", err)
	}
	if err := ValidateValue(nil, 8); err != nil {
		t.Errorf("ValidateValue(empty) error = %v", err)
	}
	if err := ValidateValue(make([]byte, 9), 8); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("ValidateValue(over limit) error = %v, want ErrValueTooLarge", err)
	}
}

func TestSanitizeClientID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "alice", want: "alice"},
		{in: "bob-01 ", want: "bob01"},
		{in: "<script>x</script>", want: "scriptxscript"},
		{in: strings.Repeat("a", MaxClientIDLen+10), want: strings.Repeat("a", MaxClientIDLen)},
		{in: "!!!", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := SanitizeClientID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SanitizeClientID(%q) error = nil, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("SanitizeClientID(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SanitizeClientID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
