package vaultserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/vaultkv-go/internal/core/domain"
	"github.com/yndnr/vaultkv-go/internal/core/ratelimit"
	"github.com/yndnr/vaultkv-go/internal/core/vault"
	"github.com/yndnr/vaultkv-go/internal/protocol"
	"github.com/yndnr/vaultkv-go/internal/storage"
	"github.com/yndnr/vaultkv-go/internal/telemetry/metric"
)

func TestNew_RequiresTLSAndStore(t *testing.T) {
	store := vault.New(vault.DefaultConfig())

	_, err := New(DefaultConfig(), store)
	assert.Error(t, err)

	_, err = New(Config{TLSConfig: &tls.Config{}}, nil)
	assert.Error(t, err)
}

func TestEndToEnd(t *testing.T) {
	env := startServer(t, DefaultConfig())
	c := env.dial(t)

	resp := c.do(t, &protocol.Request{Op: protocol.OpPut, Key: "a", Value: []byte("hello")})
	assert.Equal(t, domain.StatusOK, resp.Status)

	resp = c.do(t, &protocol.Request{Op: protocol.OpGet, Key: "a"})
	require.Equal(t, domain.StatusOK, resp.Status)
	assert.Equal(t, []byte("hello"), resp.Value)
	assert.Equal(t, env.store.Codec().Stamp([]byte("hello")), resp.Digest)

	resp = c.do(t, &protocol.Request{Op: protocol.OpDelete, Key: "a"})
	assert.Equal(t, domain.StatusOK, resp.Status)

	resp = c.do(t, &protocol.Request{Op: protocol.OpGet, Key: "a"})
	assert.Equal(t, domain.StatusNotFound, resp.Status)

	resp = c.do(t, &protocol.Request{Op: protocol.OpDelete, Key: "a"})
	assert.Equal(t, domain.StatusNotFound, resp.Status)
}

func TestPing(t *testing.T) {
	env := startServer(t, DefaultConfig())
	c := env.dial(t)

	resp := c.do(t, &protocol.Request{Op: protocol.OpPing})
	assert.Equal(t, domain.StatusOK, resp.Status)
	assert.Equal(t, "PONG", resp.Message)
}

func TestInvalidRequestsKeepConnectionOpen(t *testing.T) {
	env := startServer(t, DefaultConfig())
	c := env.dial(t)
	codec := env.store.Codec()

	tests := []struct {
		name string
		req  *protocol.Request
	}{
		{"bad key charset", &protocol.Request{Op: protocol.OpPut, Key: "a\x00b", Value: []byte("v")}},
		{"digest mismatch", &protocol.Request{Op: protocol.OpPut, Key: "k", Value: []byte("v"), Digest: codec.Stamp([]byte("w")).String()}},
		{"malformed digest", &protocol.Request{Op: protocol.OpPut, Key: "k", Value: []byte("v"), Digest: "zz"}},
		{"empty hello", &protocol.Request{Op: protocol.OpHello, ClientID: "---"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := c.do(t, tt.req)
			assert.Equal(t, domain.StatusInvalid, resp.Status)
			assert.NotEmpty(t, resp.Message)
		})
	}

	resp := c.do(t, &protocol.Request{Op: protocol.OpPing})
	assert.Equal(t, domain.StatusOK, resp.Status)
	assert.Equal(t, 0, env.store.Len())
}

func TestPutWithMatchingDigest(t *testing.T) {
	env := startServer(t, DefaultConfig())
	c := env.dial(t)

	value := []byte("sealed")
	resp := c.do(t, &protocol.Request{
		Op:     protocol.OpPut,
		Key:    "k",
		Value:  value,
		Digest: env.store.Codec().Stamp(value).String(),
	})
	assert.Equal(t, domain.StatusOK, resp.Status)
}

func TestMalformedFrameClosesConnection(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"unknown op", "*2\r\n$4\r\nSCAN\r\n$1\r\nk\r\n"},
		{"wrong arity", "*3\r\n$3\r\nGET\r\n$1\r\na\r\n$1\r\nb\r\n"},
		{"bad terminator", "*2\r\n$3\r\nGET\r\n$1\r\nkXX"},
		{"inline command", "GET k\r\n"},
		{"oversized array", "*9\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := startServer(t, DefaultConfig())
			c := env.dial(t)

			c.raw(t, tt.frame)

			resp, err := c.r.ReadResponse()
			require.NoError(t, err)
			assert.Equal(t, domain.StatusError, resp.Status)

			_, err = c.r.ReadResponse()
			assert.Error(t, err, "connection should be closed")
		})
	}
}

func TestTruncatedFrameClosesOnlyThatConnection(t *testing.T) {
	env := startServer(t, DefaultConfig())
	bad := env.dial(t)
	good := env.dial(t)

	resp := good.do(t, &protocol.Request{Op: protocol.OpPut, Key: "k", Value: []byte("v")})
	require.Equal(t, domain.StatusOK, resp.Status)

	bad.raw(t, "*3\r\n$3\r\nPUT\r\n$1\r\nk\r\n$10\r\nabc")
	require.NoError(t, bad.conn.CloseWrite())

	resp, err := bad.r.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "truncated")

	// the other session and the store are untouched
	resp = good.do(t, &protocol.Request{Op: protocol.OpGet, Key: "k"})
	require.Equal(t, domain.StatusOK, resp.Status)
	assert.Equal(t, []byte("v"), resp.Value)

	late := env.dial(t)
	resp = late.do(t, &protocol.Request{Op: protocol.OpPing})
	assert.Equal(t, domain.StatusOK, resp.Status)
}

func TestStalledFrameGetsErrorBeforeClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 200 * time.Millisecond
	reg := metric.NewRegistry()
	env := startServer(t, cfg, WithMetrics(reg))
	c := env.dial(t)

	// the write side stays open; the frame never completes
	c.raw(t, "*3\r\n$3\r\nPUT\r\n$1\r\nk\r\n$10\r\nabc")

	resp, err := c.r.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "truncated")

	_, err = c.r.ReadResponse()
	assert.Error(t, err, "connection should be closed")

	assert.Equal(t, 0, env.store.Len())
	var m dto.Metric
	require.NoError(t, reg.ProtocolErrors.Write(&m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
}

// panickyBackend panics on every write.
type panickyBackend struct{}

func (panickyBackend) Put(context.Context, storage.Record) error { panic("backend exploded") }
func (panickyBackend) Delete(context.Context, string) error { panic("backend exploded") }
func (panickyBackend) Load(context.Context, func(storage.Record) error) error {
	return nil
}

func TestPanicClosesOnlyThatSession(t *testing.T) {
	store := vault.New(vault.DefaultConfig(),
		vault.WithLogger(discardLogger()),
		vault.WithBackend(panickyBackend{}))
	env := startServerWithStore(t, DefaultConfig(), store)

	bystander := env.dial(t)
	require.Equal(t, domain.StatusOK, bystander.do(t, &protocol.Request{Op: protocol.OpPing}).Status)

	c := env.dial(t)
	require.NoError(t, c.w.WriteRequest(&protocol.Request{Op: protocol.OpPut, Key: "k", Value: []byte("v")}))
	require.NoError(t, c.w.Flush())
	_, err := c.r.ReadResponse()
	assert.Error(t, err, "panicking session should be closed")

	// the shard lock was released and other sessions keep working
	resp := bystander.do(t, &protocol.Request{Op: protocol.OpGet, Key: "k"})
	assert.Equal(t, domain.StatusNotFound, resp.Status)

	late := env.dial(t)
	assert.Equal(t, domain.StatusOK, late.do(t, &protocol.Request{Op: protocol.OpPing}).Status)
}

func TestRateLimitedConnectionStaysOpen(t *testing.T) {
	mock := clock.NewMock()
	limiter, err := ratelimit.New(ratelimit.Config{
		Capacity:      2,
		RefillRate:    4,
		IdleExpiry:    time.Minute,
		SweepInterval: time.Minute,
	}, ratelimit.WithClock(mock))
	require.NoError(t, err)

	reg := metric.NewRegistry()
	env := startServer(t, DefaultConfig(), WithLimiter(limiter), WithMetrics(reg))
	c := env.dial(t)

	get := &protocol.Request{Op: protocol.OpGet, Key: "k"}
	assert.Equal(t, domain.StatusNotFound, c.do(t, get).Status)
	assert.Equal(t, domain.StatusNotFound, c.do(t, get).Status)

	resp := c.do(t, get)
	assert.Equal(t, domain.StatusRateLimited, resp.Status)

	// connection-level ops are not limited
	assert.Equal(t, domain.StatusOK, c.do(t, &protocol.Request{Op: protocol.OpPing}).Status)

	// a rejected PUT never reaches the store
	resp = c.do(t, &protocol.Request{Op: protocol.OpPut, Key: "k", Value: []byte("v")})
	assert.Equal(t, domain.StatusRateLimited, resp.Status)
	assert.Equal(t, 0, env.store.Len())

	mock.Add(250 * time.Millisecond)
	assert.Equal(t, domain.StatusNotFound, c.do(t, get).Status)
	assert.Equal(t, domain.StatusRateLimited, c.do(t, get).Status)
}

func TestHelloClientIDInUse(t *testing.T) {
	env := startServer(t, DefaultConfig())
	a := env.dial(t)
	b := env.dial(t)

	resp := a.do(t, &protocol.Request{Op: protocol.OpHello, ClientID: "alice-01"})
	require.Equal(t, domain.StatusOK, resp.Status)
	assert.Equal(t, "alice01", resp.Message)

	// repeating the same id on the owning session is fine
	resp = a.do(t, &protocol.Request{Op: protocol.OpHello, ClientID: "alice01"})
	assert.Equal(t, domain.StatusOK, resp.Status)

	resp = b.do(t, &protocol.Request{Op: protocol.OpHello, ClientID: "alice01"})
	assert.Equal(t, domain.StatusInvalid, resp.Status)
	assert.Contains(t, resp.Message, "in use")

	resp = a.do(t, &protocol.Request{Op: protocol.OpQuit})
	assert.Equal(t, domain.StatusOK, resp.Status)

	assert.Eventually(t, func() bool {
		resp := b.do(t, &protocol.Request{Op: protocol.OpHello, ClientID: "alice01"})
		return resp.Status == domain.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHelloRenameReleasesOldID(t *testing.T) {
	env := startServer(t, DefaultConfig())
	a := env.dial(t)
	b := env.dial(t)

	require.Equal(t, domain.StatusOK, a.do(t, &protocol.Request{Op: protocol.OpHello, ClientID: "first"}).Status)
	require.Equal(t, domain.StatusOK, a.do(t, &protocol.Request{Op: protocol.OpHello, ClientID: "second"}).Status)

	assert.Equal(t, domain.StatusOK, b.do(t, &protocol.Request{Op: protocol.OpHello, ClientID: "first"}).Status)
	assert.Equal(t, domain.StatusInvalid, b.do(t, &protocol.Request{Op: protocol.OpHello, ClientID: "second"}).Status)
}

func TestQuitClosesConnection(t *testing.T) {
	env := startServer(t, DefaultConfig())
	c := env.dial(t)

	resp := c.do(t, &protocol.Request{Op: protocol.OpQuit})
	assert.Equal(t, domain.StatusOK, resp.Status)

	_, err := c.r.ReadResponse()
	assert.Error(t, err)
}

func TestHandshakeFailureIsIsolated(t *testing.T) {
	reg := metric.NewRegistry()
	env := startServer(t, DefaultConfig(), WithMetrics(reg))

	plain, err := net.Dial("tcp", env.addr)
	require.NoError(t, err)
	defer plain.Close()

	_, err = plain.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)
	_ = plain.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	for {
		if _, err = plain.Read(buf); err != nil {
			break
		}
	}
	assertClosedByServer(t, err)

	c := env.dial(t)
	assert.Equal(t, domain.StatusOK, c.do(t, &protocol.Request{Op: protocol.OpPing}).Status)
}

func TestHandshakeTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 100 * time.Millisecond
	env := startServer(t, cfg)

	plain, err := net.Dial("tcp", env.addr)
	require.NoError(t, err)
	defer plain.Close()

	_ = plain.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = plain.Read(make([]byte, 1))
	assertClosedByServer(t, err)
}

func TestIdleTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	env := startServer(t, cfg)
	c := env.dial(t)

	start := time.Now()
	_, err := c.r.ReadResponse()
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConcurrentClients(t *testing.T) {
	env := startServer(t, DefaultConfig())

	const clients = 16
	const keys = 20

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		c := env.dial(t)
		wg.Add(1)
		go func(id int, c *testClient) {
			defer wg.Done()
			for k := 0; k < keys; k++ {
				key := fmt.Sprintf("c%d-k%d", id, k)
				if err := c.w.WriteRequest(&protocol.Request{Op: protocol.OpPut, Key: key, Value: []byte(key)}); err != nil {
					t.Error(err)
					return
				}
				if err := c.w.WriteRequest(&protocol.Request{Op: protocol.OpGet, Key: key}); err != nil {
					t.Error(err)
					return
				}
			}
			// pipelined: all requests in one flush
			if err := c.w.Flush(); err != nil {
				t.Error(err)
				return
			}
			for k := 0; k < keys; k++ {
				put, err := c.r.ReadResponse()
				if err != nil || put.Status != domain.StatusOK {
					t.Errorf("client %d put %d = %+v, %v", id, k, put, err)
					return
				}
				get, err := c.r.ReadResponse()
				if err != nil || string(get.Value) != fmt.Sprintf("c%d-k%d", id, k) {
					t.Errorf("client %d get %d = %+v, %v", id, k, get, err)
					return
				}
			}
		}(i, c)
	}
	wg.Wait()

	assert.Equal(t, clients*keys, env.store.Len())
}

func TestShutdownClosesSessions(t *testing.T) {
	env := startServer(t, DefaultConfig())
	c := env.dial(t)
	require.Equal(t, domain.StatusOK, c.do(t, &protocol.Request{Op: protocol.OpPing}).Status)

	require.Eventually(t, func() bool { return env.srv.ActiveSessions() == 1 },
		2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))

	<-env.stopped
	assert.ErrorIs(t, env.serveErr, ErrServerClosed)
	assert.True(t, env.srv.Draining())
	assert.Equal(t, int64(0), env.srv.ActiveSessions())

	_, err := c.r.ReadResponse()
	assert.Error(t, err)

	_, err = net.DialTimeout("tcp", env.addr, time.Second)
	assert.Error(t, err)
}

func TestServeAfterShutdown(t *testing.T) {
	env := startServer(t, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, env.srv.Serve(context.Background(), ln), ErrServerClosed)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	env := startServer(t, DefaultConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestIdentityOf(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want string
	}{
		{&net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 5555}, "10.1.2.3"},
		{&net.TCPAddr{IP: net.ParseIP("::1"), Port: 80}, "::1"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := identityOf(tt.addr); got != tt.want {
			t.Errorf("identityOf(%v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateHandshaking: "handshaking",
		StateReady:       "ready",
		StateProcessing:  "processing",
		StateClosed:      "closed",
		State(42):        "unknown",
	}
	for st, want := range states {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}

// assertClosedByServer fails if err is a client-side deadline rather than
// the server closing the connection.
func assertClosedByServer(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "server should close before the client deadline")
	}
}
