package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/yndnr/vaultkv-go/internal/core/domain"
	"github.com/yndnr/vaultkv-go/internal/protocol"
	"github.com/yndnr/vaultkv-go/pkg/integrity"
)

// ErrClosed is returned by calls on a closed Client.
var ErrClosed = errors.New("client: closed")

// DefaultTimeout bounds one round trip when ctx has no deadline.
const DefaultTimeout = 30 * time.Second

// Item is a value returned by Get.
type Item struct {
	Value  []byte
	Digest integrity.Digest
}

// Client is a connection to a vaultkv server. It is safe for concurrent use;
// requests are serialized.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *protocol.Reader
	w      *protocol.Writer
	codec  *integrity.Codec
	closed bool
}

// Option configures a Client.
type Option func(*Client)

// WithCodec sets the codec used to verify GET replies. It must match the
// server's algorithm.
func WithCodec(c *integrity.Codec) Option {
	return func(cl *Client) {
		cl.codec = c
	}
}

// Dial connects to addr and completes the TLS handshake.
func Dial(ctx context.Context, addr string, cfg *tls.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client: tls config is required")
	}
	d := tls.Dialer{Config: cfg}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newClient(conn, opts...), nil
}

func newClient(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn: conn,
		r:    protocol.NewReader(bufio.NewReader(conn), protocol.DefaultLimits()),
		w:    protocol.NewWriter(bufio.NewWriter(conn)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.codec == nil {
		c.codec = integrity.Default()
	}
	return c
}

// Put stores value under key. The digest is computed locally and sent
// along, so the server rejects a value damaged in transit.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.roundTrip(ctx, &protocol.Request{
		Op:     protocol.OpPut,
		Key:    key,
		Value:  value,
		Digest: c.codec.Stamp(value).String(),
	})
	return err
}

// Get returns the verified value stored under key.
func (c *Client) Get(ctx context.Context, key string) (Item, error) {
	resp, err := c.roundTrip(ctx, &protocol.Request{Op: protocol.OpGet, Key: key})
	if err != nil {
		return Item{}, err
	}
	if !resp.HasValue {
		return Item{}, domain.ErrProtocol.WithDetails("GET reply carries no value")
	}
	if !c.codec.Verify(resp.Value, resp.Digest) {
		return Item{}, domain.ErrIntegrityViolation.WithDetails("value does not match digest")
	}
	return Item{Value: resp.Value, Digest: resp.Digest}, nil
}

// Delete removes key. Deleting an absent key returns domain.ErrKeyNotFound.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.roundTrip(ctx, &protocol.Request{Op: protocol.OpDelete, Key: key})
	return err
}

// Ping checks liveness and returns the server's reply payload.
func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.roundTrip(ctx, &protocol.Request{Op: protocol.OpPing})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Hello registers a client ID for this connection and returns the
// sanitized form the server stored.
func (c *Client) Hello(ctx context.Context, clientID string) (string, error) {
	resp, err := c.roundTrip(ctx, &protocol.Request{Op: protocol.OpHello, ClientID: clientID})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Close sends QUIT and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	_ = c.conn.SetDeadline(time.Now().Add(time.Second))
	if err := c.w.WriteRequest(&protocol.Request{Op: protocol.OpQuit}); err == nil {
		if c.w.Flush() == nil {
			_, _ = c.r.ReadResponse()
		}
	}
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	resp, err := c.exchange(req)
	if err != nil {
		// the stream position is unknown after a transport failure
		c.closed = true
		_ = c.conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return resp, domain.ErrorOf(resp.Status, resp.Message)
}

func (c *Client) exchange(req *protocol.Request) (*protocol.Response, error) {
	if err := c.w.WriteRequest(req); err != nil {
		return nil, fmt.Errorf("write %s: %w", req.Op, err)
	}
	if err := c.w.Flush(); err != nil {
		return nil, fmt.Errorf("write %s: %w", req.Op, err)
	}
	resp, err := c.r.ReadResponse()
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", req.Op, err)
	}
	return resp, nil
}
