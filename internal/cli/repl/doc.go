// Package repl implements the vaultkv-cli interactive shell.
//
//   - repl.go: read-eval-print loop and argument splitting
//   - completer.go: command prefix completion
//   - history.go: command history persisted across sessions
package repl
