// Package buildinfo exposes the version of the running binary.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/vaultkv-go/internal/infra/buildinfo.Version=v1.0.0 \
//	  -X github.com/yndnr/vaultkv-go/internal/infra/buildinfo.Commit=abc123"
//
// Values left unset fall back to what the Go toolchain embedded.
package buildinfo
