package vaultserver

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/vaultkv-go/internal/core/vault"
	"github.com/yndnr/vaultkv-go/internal/infra/tlsroots"
	"github.com/yndnr/vaultkv-go/internal/infra/tlsroots/tlstest"
	"github.com/yndnr/vaultkv-go/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	srv      *Server
	store    *vault.Store
	addr     string
	pool     *x509.CertPool
	stopped  chan struct{}
	serveErr error
}

func startServer(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	store := vault.New(vault.DefaultConfig(), vault.WithLogger(discardLogger()))
	return startServerWithStore(t, cfg, store, opts...)
}

func startServerWithStore(t *testing.T, cfg Config, store *vault.Store, opts ...Option) *testEnv {
	t.Helper()

	pair := tlstest.WriteServerCert(t, t.TempDir())
	w, err := tlsroots.NewWatcher(pair.CertFile, pair.KeyFile, tlsroots.WithLogger(discardLogger()))
	require.NoError(t, err)
	cfg.TLSConfig = w.ServerConfig()

	srv, err := New(cfg, store, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	env := &testEnv{
		srv:     srv,
		store:   store,
		addr:    ln.Addr().String(),
		pool:    pair.Pool(),
		stopped: make(chan struct{}),
	}
	go func() {
		env.serveErr = srv.Serve(context.Background(), ln)
		close(env.stopped)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-env.stopped
	})
	return env
}

type testClient struct {
	conn *tls.Conn
	r    *protocol.Reader
	w    *protocol.Writer
}

func (e *testEnv) dial(t *testing.T) *testClient {
	t.Helper()
	conn, err := tls.Dial("tcp", e.addr, &tls.Config{
		RootCAs:    e.pool,
		ServerName: "localhost",
		MinVersion: tls.VersionTLS12,
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	return &testClient{
		conn: conn,
		r:    protocol.NewReader(bufio.NewReader(conn), protocol.DefaultLimits()),
		w:    protocol.NewWriter(bufio.NewWriter(conn)),
	}
}

func (c *testClient) do(t *testing.T, req *protocol.Request) *protocol.Response {
	t.Helper()
	require.NoError(t, c.w.WriteRequest(req))
	require.NoError(t, c.w.Flush())
	resp, err := c.r.ReadResponse()
	require.NoError(t, err)
	return resp
}

func (c *testClient) raw(t *testing.T, frame string) {
	t.Helper()
	_, err := io.WriteString(c.conn, frame)
	require.NoError(t, err)
}
