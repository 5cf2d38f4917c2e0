// Package config provides server configuration for vaultkv.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default configuration values
//   - verify.go: validation of ranges, files and enumerations
//   - sanitize.go: copies safe for logging
//
// Configuration is loaded via internal/infra/confloader from files,
// environment variables and flags.
package config
