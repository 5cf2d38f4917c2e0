// Package vaulttest starts a vaultkv server on a loopback port for tests.
package vaulttest

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/yndnr/vaultkv-go/internal/core/vault"
	"github.com/yndnr/vaultkv-go/internal/infra/tlsroots"
	"github.com/yndnr/vaultkv-go/internal/infra/tlsroots/tlstest"
	"github.com/yndnr/vaultkv-go/internal/server/vaultserver"
)

// Env is a running test server.
type Env struct {
	Server *vaultserver.Server
	Store  *vault.Store
	Addr   string
	Host   string
	Port   int
	// CAFile is the PEM file a client must trust.
	CAFile string
}

// ClientTLS returns a client config trusting the server certificate.
func (e *Env) ClientTLS() *tls.Config {
	pool := tlsroots.NewEmptyPool()
	_ = pool.AddCertFile(e.CAFile)
	return pool.ClientConfig("localhost")
}

// Start runs a server with a fresh in-memory store and stops it when the
// test ends.
func Start(t testing.TB, opts ...vaultserver.Option) *Env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pair := tlstest.WriteServerCert(t, t.TempDir())
	w, err := tlsroots.NewWatcher(pair.CertFile, pair.KeyFile, tlsroots.WithLogger(logger))
	if err != nil {
		t.Fatalf("load test certificate: %v", err)
	}

	cfg := vaultserver.DefaultConfig()
	cfg.TLSConfig = w.ServerConfig()
	store := vault.New(vault.DefaultConfig(), vault.WithLogger(logger))
	srv, err := vaultserver.New(cfg, store, append([]vaultserver.Option{vaultserver.WithLogger(logger)}, opts...)...)
	if err != nil {
		t.Fatalf("vaultserver.New() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	stopped := make(chan struct{})
	go func() {
		_ = srv.Serve(context.Background(), ln)
		close(stopped)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-stopped
	})

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return &Env{
		Server: srv,
		Store:  store,
		Addr:   ln.Addr().String(),
		Host:   host,
		Port:   port,
		CAFile: pair.CertFile,
	}
}
