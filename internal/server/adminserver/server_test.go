package adminserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/vaultkv-go/internal/infra/buildinfo"
	"github.com/yndnr/vaultkv-go/internal/telemetry/metric"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLivez(t *testing.T) {
	s := New(Config{}, WithLogger(discard()))

	rec := get(t, s.Router(), "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
}

func TestReadyz(t *testing.T) {
	s := New(Config{}, WithLogger(discard()))
	h := s.Router()

	rec := get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)

	s.SetReady(false)
	assert.False(t, s.Ready())
	rec = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"draining"`)
}

func TestStats(t *testing.T) {
	s := New(Config{}, WithLogger(discard()), WithStats(func() Stats {
		return Stats{Entries: 12, ActiveSessions: 3, RateLimitBuckets: 2}
	}))

	rec := get(t, s.Router(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var got Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, Stats{Entries: 12, ActiveSessions: 3, RateLimitBuckets: 2}, got)
}

func TestStats_NoSource(t *testing.T) {
	s := New(Config{}, WithLogger(discard()))

	rec := get(t, s.Router(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var got Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Zero(t, got)
}

func TestVersion(t *testing.T) {
	s := New(Config{}, WithLogger(discard()))

	rec := get(t, s.Router(), "/version")
	require.Equal(t, http.StatusOK, rec.Code)

	var got buildinfo.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, buildinfo.Get(), got)
}

func TestMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	reg.RateLimitedRequest()
	s := New(Config{}, WithLogger(discard()), WithMetrics(reg))

	rec := get(t, s.Router(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vaultkv_rate_limited_total 1")
}

func TestMetrics_NotMountedWithoutRegistry(t *testing.T) {
	s := New(Config{}, WithLogger(discard()))

	rec := get(t, s.Router(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverer(t *testing.T) {
	s := New(Config{}, WithLogger(discard()), WithStats(func() Stats {
		panic("boom")
	}))

	rec := get(t, s.Router(), "/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "VK-SYS-5000")
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{}, WithLogger(discard()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/livez"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestShutdown_MarksNotReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{}, WithLogger(discard()))
	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/readyz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.False(t, s.Ready())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestDefaults(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"})
	assert.Equal(t, DefaultReadTimeout, s.cfg.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, s.cfg.WriteTimeout)
	assert.True(t, strings.HasPrefix(s.srv.Addr, "127.0.0.1"))
}
