package protocol

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/yndnr/vaultkv-go/internal/core/domain"
	"github.com/yndnr/vaultkv-go/pkg/integrity"
)

// Op names a request operation.
type Op string

// Operations.
const (
	OpPut    Op = "PUT"
	OpGet    Op = "GET"
	OpDelete Op = "DELETE"
	OpPing   Op = "PING"
	OpHello  Op = "HELLO"
	OpQuit   Op = "QUIT"
)

// ErrUnknownOp reports a frame naming an operation that does not exist.
var ErrUnknownOp = errors.New("protocol: unknown operation")

// arity is the allowed element count per op, including the op itself.
var arity = map[Op][2]int{
	OpPut:    {3, 4},
	OpGet:    {2, 2},
	OpDelete: {2, 2},
	OpPing:   {1, 1},
	OpHello:  {2, 2},
	OpQuit:   {1, 1},
}

// IsData reports whether op touches the store. Only data ops are rate
// limited.
func (op Op) IsData() bool {
	return op == OpPut || op == OpGet || op == OpDelete
}

// Request is a decoded request frame.
type Request struct {
	Op    Op
	Key   string
	Value []byte
	// Digest is the optional hex digest sent with PUT. It is kept raw so a
	// malformed digest is reported as an invalid argument, not a bad frame.
	Digest string
	// ClientID is the HELLO argument.
	ClientID string
}

// Response is a decoded response frame.
type Response struct {
	Status domain.Status
	// Message is the second element: a diagnostic for non-OK statuses, or
	// the payload of PING.
	Message string
	// Value and Digest are set for a successful GET.
	Value  []byte
	Digest integrity.Digest
	// HasValue distinguishes an empty GET value from a status-only reply.
	HasValue bool
}

// Reader decodes frames from a buffered stream.
type Reader struct {
	br     *bufio.Reader
	limits Limits
}

// NewReader wraps br. Zero limits fall back to the defaults.
func NewReader(br *bufio.Reader, limits Limits) *Reader {
	return &Reader{br: br, limits: limits.normalize()}
}

// Wait blocks until at least one byte of the next frame is available.
// It returns io.EOF if the peer closed cleanly between frames.
func (r *Reader) Wait() error {
	_, err := r.br.Peek(1)
	return err
}

// ReadRequest reads and validates one request frame.
func (r *Reader) ReadRequest() (*Request, error) {
	if err := r.Wait(); err != nil {
		return nil, err
	}
	args, err := readArray(r.br, r.limits)
	if err != nil {
		return nil, err
	}
	return parseRequest(args)
}

func parseRequest(args [][]byte) (*Request, error) {
	op := Op(normalizeOp(args[0]))
	bounds, ok := arity[op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, truncateForLog(args[0]))
	}
	if len(args) < bounds[0] || len(args) > bounds[1] {
		return nil, fmt.Errorf("%w: wrong number of arguments for %s", ErrProtocol, op)
	}

	req := &Request{Op: op}
	switch op {
	case OpPut:
		req.Key = string(args[1])
		req.Value = args[2]
		if len(args) == 4 {
			req.Digest = string(args[3])
		}
	case OpGet, OpDelete:
		req.Key = string(args[1])
	case OpHello:
		req.ClientID = string(args[1])
	}
	return req, nil
}

// ReadResponse reads one response frame.
func (r *Reader) ReadResponse() (*Response, error) {
	if err := r.Wait(); err != nil {
		return nil, err
	}
	args, err := readArray(r.br, r.limits)
	if err != nil {
		return nil, err
	}
	if len(args) > 3 {
		return nil, fmt.Errorf("%w: response has %d elements", ErrProtocol, len(args))
	}

	resp := &Response{Status: domain.Status(args[0])}
	if !resp.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrProtocol, truncateForLog(args[0]))
	}
	switch len(args) {
	case 2:
		resp.Message = string(args[1])
	case 3:
		d, err := integrity.ParseDigest(string(args[2]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		resp.Value = args[1]
		resp.Digest = d
		resp.HasValue = true
	}
	return resp, nil
}

// Writer encodes frames to a buffered stream. Callers Flush.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps bw.
func NewWriter(bw *bufio.Writer) *Writer {
	return &Writer{bw: bw}
}

// WriteRequest encodes req.
func (w *Writer) WriteRequest(req *Request) error {
	switch req.Op {
	case OpPut:
		if req.Digest != "" {
			return writeArray(w.bw, []byte(req.Op), []byte(req.Key), req.Value, []byte(req.Digest))
		}
		return writeArray(w.bw, []byte(req.Op), []byte(req.Key), req.Value)
	case OpGet, OpDelete:
		return writeArray(w.bw, []byte(req.Op), []byte(req.Key))
	case OpHello:
		return writeArray(w.bw, []byte(req.Op), []byte(req.ClientID))
	case OpPing, OpQuit:
		return writeArray(w.bw, []byte(req.Op))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
	}
}

// WriteResponse encodes resp.
func (w *Writer) WriteResponse(resp *Response) error {
	status := []byte(resp.Status)
	switch {
	case resp.HasValue:
		return writeArray(w.bw, status, resp.Value, []byte(resp.Digest.String()))
	case resp.Message != "":
		return writeArray(w.bw, status, []byte(resp.Message))
	default:
		return writeArray(w.bw, status)
	}
}

// Flush writes buffered data to the underlying stream.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

func truncateForLog(b []byte) string {
	const maxLen = 32
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}
