// Package main provides the entry point for vaultkv-cli.
//
// The CLI talks to a vaultkv-server over TLS, either one command per
// invocation or through an interactive shell.
//
// Usage:
//
//	vaultkv-cli [global flags] command [args]
//	vaultkv-cli --host vault.local --ca-file ca.pem put greeting "hello world"
//	vaultkv-cli -o json get greeting
//	vaultkv-cli shell
package main
