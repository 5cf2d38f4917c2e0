package logger

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestRedactSensitive(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("put",
		"key", "user:42",
		"value", "hunter2",
		"raw_value", []byte("bytes"),
		"passphrase", "correct horse",
		"value_size", 7,
		slog.Group("tls", slog.String("private_key", "pem")),
	)

	entry := decode(t, buf.Bytes())

	if entry["key"] != "user:42" {
		t.Errorf("key = %v, want user:42", entry["key"])
	}
	for _, k := range []string{"value", "raw_value", "passphrase"} {
		if entry[k] != redactedValue {
			t.Errorf("%s = %v, want %s", k, entry[k], redactedValue)
		}
	}
	if entry["value_size"] != float64(7) {
		t.Errorf("value_size = %v, want 7", entry["value_size"])
	}
	group, _ := entry["tls"].(map[string]any)
	if group["private_key"] != redactedValue {
		t.Errorf("tls.private_key = %v, want %s", group["private_key"], redactedValue)
	}
}

func TestRedactSensitive_EmptyStringKept(t *testing.T) {
	a := redactSensitive(slog.String("secret", ""))
	if a.Value.String() != "" {
		t.Errorf("got = %q, want empty", a.Value.String())
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"value", true},
		{"Passphrase", true},
		{"db_password", true},
		{"key", false},
		{"remote", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
