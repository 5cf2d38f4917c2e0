package vaultserver

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"

	"github.com/yndnr/vaultkv-go/internal/protocol"
)

// State is the lifecycle stage of a session.
type State int32

// Session states.
const (
	StateHandshaking State = iota
	StateReady
	StateProcessing
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session owns one client connection.
type session struct {
	id       string
	raw      net.Conn
	conn     net.Conn // TLS after the handshake
	identity string
	logger   *slog.Logger

	// clientID is set by HELLO and only touched by the session goroutine.
	clientID string

	state  atomic.Int32
	closed atomic.Bool
}

func newSession(c net.Conn, logger *slog.Logger) *session {
	id := newConnID()
	return &session{
		id:       id,
		raw:      c,
		conn:     c,
		identity: identityOf(c.RemoteAddr()),
		logger: logger.With(
			"conn_id", id,
			"remote", c.RemoteAddr().String(),
		),
	}
}

func (ss *session) setState(st State) {
	ss.state.Store(int32(st))
}

func (ss *session) State() State {
	return State(ss.state.Load())
}

func (ss *session) close() {
	if !ss.closed.CompareAndSwap(false, true) {
		return
	}
	ss.setState(StateClosed)
	_ = ss.raw.Close()
}

// newConnID returns "conn-" followed by a lowercase ULID.
func newConnID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return "conn-" + strings.ToLower(id.String())
}

// identityOf returns the host part of addr, the rate limiting identity.
func identityOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (s *Server) serveSession(ctx context.Context, ss *session) {
	defer s.unregister(ss)
	defer ss.close()
	defer func() {
		if rec := recover(); rec != nil {
			ss.logger.Error("panic in session, closing connection",
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()

	if err := s.handshake(ctx, ss); err != nil {
		s.metrics.HandshakeFailed()
		ss.logger.Warn("tls handshake failed", "error", err)
		return
	}

	s.active.Inc()
	s.metrics.SessionOpened()
	defer func() {
		s.active.Dec()
		s.metrics.SessionClosed()
	}()

	ss.logger.Debug("session started")

	br := bufio.NewReader(ss.conn)
	bw := bufio.NewWriter(ss.conn)
	r := protocol.NewReader(br, s.cfg.Limits)
	w := protocol.NewWriter(bw)

	for {
		ss.setState(StateReady)

		// First byte: allow idle timeout between requests.
		if err := ss.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}
		if err := r.Wait(); err != nil {
			s.logReadEnd(ss, err, "idle timeout")
			return
		}

		// After first byte: tighten to the per-frame read timeout.
		if err := ss.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}
		req, err := r.ReadRequest()
		if err != nil {
			var netErr net.Error
			switch {
			case protocol.IsFrameError(err):
				s.rejectFrame(ss, w, err.Error())
			case errors.As(err, &netErr) && netErr.Timeout():
				// The frame started but did not finish in time.
				s.rejectFrame(ss, w, truncatedByTimeout)
			default:
				s.logReadEnd(ss, err, "read timeout")
			}
			return
		}

		ss.setState(StateProcessing)
		resp, quit := s.handle(ctx, ss, req)

		if err := ss.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return
		}
		if err := w.WriteResponse(resp); err != nil {
			ss.logger.Debug("write failed", "error", err)
			return
		}
		if err := w.Flush(); err != nil {
			ss.logger.Debug("flush failed", "error", err)
			return
		}
		if quit {
			ss.logger.Debug("client quit")
			return
		}
	}
}

const truncatedByTimeout = "protocol: malformed frame: truncated frame (read timeout)"

// rejectFrame answers a request that could not be decoded. The caller closes
// the connection afterwards.
func (s *Server) rejectFrame(ss *session, w *protocol.Writer, msg string) {
	s.metrics.ProtocolError()
	ss.logger.Warn("malformed request, closing connection", "error", msg)
	_ = ss.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = w.WriteResponse(errorResponse(msg))
	_ = w.Flush()
}

func (s *Server) handshake(ctx context.Context, ss *session) error {
	ss.setState(StateHandshaking)

	tlsConn := tls.Server(ss.raw, s.cfg.TLSConfig)
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	if err := tlsConn.HandshakeContext(hctx); err != nil {
		return err
	}
	ss.conn = tlsConn
	return nil
}

func (s *Server) logReadEnd(ss *session, err error, timeoutMsg string) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		ss.logger.Debug("client disconnected")
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		ss.logger.Debug(timeoutMsg)
		return
	}
	ss.logger.Debug("connection read error", "error", err)
}
