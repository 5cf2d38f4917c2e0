// Package config loads vaultkv-cli defaults from ~/.vaultkv/cli.yaml.
//
// Command-line flags and VAULTKV_* environment variables override the
// file; the file overrides built-in defaults.
package config
