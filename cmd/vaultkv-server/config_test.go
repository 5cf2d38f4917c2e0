package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePort(t *testing.T) {
	p, err := parsePort("7443")
	require.NoError(t, err)
	assert.Equal(t, "7443", p)

	p, err = parsePort("08080")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)

	for _, bad := range []string{"", "0", "65536", "-1", "http"} {
		_, err := parsePort(bad)
		assert.Error(t, err, "port %q", bad)
	}
}

func TestFlagOverrides_ToMap(t *testing.T) {
	assert.Empty(t, flagOverrides{}.toMap(":7443"))

	m := flagOverrides{Port: "9000", CertFile: "c.pem", KeyFile: "k.pem"}.toMap("127.0.0.1:7443")
	assert.Equal(t, map[string]any{
		"server.addr":          "127.0.0.1:9000",
		"server.tls.cert_file": "c.pem",
		"server.tls.key_file":  "k.pem",
	}, m)

	m = flagOverrides{Port: "9000"}.toMap(":7443")
	assert.Equal(t, ":9000", m["server.addr"])
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_FlagsWin(t *testing.T) {
	dir := t.TempDir()
	cert := writeFile(t, dir, "cert.pem", "cert")
	key := writeFile(t, dir, "key.pem", "key")
	cfgFile := writeFile(t, dir, "server.yaml", `
server:
  addr: "127.0.0.1:7000"
  tls:
    cert_file: "/does/not/exist.pem"
    key_file: "/does/not/exist.key"
log:
  level: debug
`)

	cfg, err := loadConfig(cfgFile, flagOverrides{Port: "7100", CertFile: cert, KeyFile: key})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7100", cfg.Server.Addr)
	assert.Equal(t, cert, cfg.Server.TLS.CertFile)
	assert.Equal(t, key, cfg.Server.TLS.KeyFile)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "server.yaml", `
server:
  tls:
    cert_file: "/does/not/exist.pem"
    key_file: "/does/not/exist.key"
`)

	_, err := loadConfig(cfgFile, flagOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
