package tlsroots

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
)

func verifyOpts(p *Pool) x509.VerifyOptions {
	return x509.VerifyOptions{
		Roots:     p.Pool(),
		DNSName:   "localhost",
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
}

func mkdir(t *testing.T, parent, name string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	return dir
}
