// Package output formats vaultkv-cli results.
//
//   - formatter.go: Result type, Formatter interface and factory
//   - text.go: plain output for terminals
//   - json.go: JSON output for scripting
//   - yaml.go: YAML output
package output
