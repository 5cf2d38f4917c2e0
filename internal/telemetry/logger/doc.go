// Package logger provides structured logging for vaultkv on top of slog.
//
// All loggers share one level, adjustable at runtime with SetLevel.
// Output can fan out to a size-rotated file. Stored values, passphrases
// and secrets never reach log output (see redact.go).
package logger
