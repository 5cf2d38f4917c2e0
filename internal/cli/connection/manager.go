package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/yndnr/vaultkv-go/internal/client"
	"github.com/yndnr/vaultkv-go/internal/infra/tlsroots"
)

// DialTimeout bounds connecting and the TLS handshake.
const DialTimeout = 10 * time.Second

// Target describes the server to connect to.
type Target struct {
	Host string
	Port int
	// CAFile is a PEM bundle trusted in addition to the system roots. When
	// empty only the system roots are used.
	CAFile string
	// ServerName overrides the name checked against the certificate.
	ServerName string
	// ClientID, when set, is registered with HELLO after connecting.
	ClientID string
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// TLSConfig builds the client TLS configuration for t.
func (t Target) TLSConfig() (*tls.Config, error) {
	pool := tlsroots.NewPool()
	if t.CAFile != "" {
		if err := pool.AddCertFile(t.CAFile); err != nil {
			return nil, err
		}
	}
	name := t.ServerName
	if name == "" {
		name = t.Host
	}
	return pool.ClientConfig(name), nil
}

// Manager manages the connection to a vaultkv server.
type Manager struct {
	target  Target
	current *client.Client
}

// NewManager creates a manager for target. Nothing is dialed yet.
func NewManager(target Target) *Manager {
	return &Manager{target: target}
}

// Target returns the configured target.
func (m *Manager) Target() Target {
	return m.target
}

// Client returns the open connection, dialing it first if needed.
func (m *Manager) Client(ctx context.Context) (*client.Client, error) {
	if m.current != nil {
		return m.current, nil
	}
	if m.target.Host == "" || m.target.Port <= 0 {
		return nil, errors.New("no server configured")
	}

	cfg, err := m.target.TLSConfig()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	c, err := client.Dial(dialCtx, m.target.Addr(), cfg)
	if err != nil {
		return nil, err
	}

	if m.target.ClientID != "" {
		if _, err := c.Hello(dialCtx, m.target.ClientID); err != nil {
			c.Close()
			return nil, fmt.Errorf("register client id: %w", err)
		}
	}

	m.current = c
	return c, nil
}

// Disconnect closes the current connection.
func (m *Manager) Disconnect() error {
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}

// IsConnected returns true if a connection is open.
func (m *Manager) IsConnected() bool {
	return m.current != nil
}
