// Package confloader loads configuration from YAML files, environment
// variables and flag maps using koanf.
//
// Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (VAULTKV_ prefix)
//  3. Configuration file
//  4. Default values already present in the target struct
//
// Environment names map to keys by lowercasing and turning a double
// underscore into a level separator, so VAULTKV_SERVER__READ_TIMEOUT sets
// server.read_timeout.
//
// Watcher reports changes to a watched file so callers can reload.
package confloader
