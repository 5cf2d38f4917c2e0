package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Frame limits.
const (
	// DefaultMaxArrayLen bounds the element count of a frame. The longest
	// request, PUT with a digest, has four elements.
	DefaultMaxArrayLen = 8

	// DefaultMaxBulkLen bounds a single bulk string (1 MiB).
	DefaultMaxBulkLen = 1024 * 1024

	// maxHeaderLen bounds "*<n>\r\n" and "$<n>\r\n" lines.
	maxHeaderLen = 64
)

var (
	// ErrProtocol reports a malformed or truncated frame.
	ErrProtocol = errors.New("protocol: malformed frame")
	// ErrLimitExceeded reports a frame over a configured bound.
	ErrLimitExceeded = errors.New("protocol: limit exceeded")
)

// IsFrameError reports whether err means the peer sent bytes that cannot be
// framed. The stream position is lost after such an error.
func IsFrameError(err error) bool {
	return errors.Is(err, ErrProtocol) || errors.Is(err, ErrLimitExceeded) || errors.Is(err, ErrUnknownOp)
}

// Limits bounds what a Reader accepts.
type Limits struct {
	MaxArrayLen int
	MaxBulkLen  int
}

// DefaultLimits returns the default frame limits.
func DefaultLimits() Limits {
	return Limits{
		MaxArrayLen: DefaultMaxArrayLen,
		MaxBulkLen:  DefaultMaxBulkLen,
	}
}

func (l Limits) normalize() Limits {
	def := DefaultLimits()
	if l.MaxArrayLen <= 0 {
		l.MaxArrayLen = def.MaxArrayLen
	}
	if l.MaxBulkLen <= 0 {
		l.MaxBulkLen = def.MaxBulkLen
	}
	return l
}

// readArray reads one frame. The caller has already seen at least one byte
// of it, so running out of input part way is a truncated frame.
func readArray(r *bufio.Reader, limits Limits) ([][]byte, error) {
	line, err := readLine(r, maxHeaderLen)
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[0] != '*' {
		return nil, fmt.Errorf("%w: expected array", ErrProtocol)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid array length", ErrProtocol)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	if n > limits.MaxArrayLen {
		return nil, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, n, limits.MaxArrayLen)
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		arg, err := readBulk(r, limits.MaxBulkLen)
		if err != nil {
			return nil, err
		}
		out = append(out, arg)
	}
	return out, nil
}

func readBulk(r *bufio.Reader, maxLen int) ([]byte, error) {
	line, err := readLine(r, maxHeaderLen)
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[0] != '$' {
		return nil, fmt.Errorf("%w: expected bulk string", ErrProtocol)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
	}
	if n > maxLen {
		return nil, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, n, maxLen)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, truncated(err)
	}
	if !bytes.HasSuffix(buf, []byte("\r\n")) {
		return nil, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
	}
	return buf[:n], nil
}

func readLine(r *bufio.Reader, maxLen int) (string, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		if err == nil {
			buf = append(buf, frag...)
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			buf = append(buf, frag...)
			if len(buf) > maxLen {
				return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
			}
			continue
		}
		if len(buf)+len(frag) > maxLen {
			return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
		}
		return "", truncated(err)
	}

	if len(buf) > maxLen {
		return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
	}
	if len(buf) < 2 || !bytes.HasSuffix(buf, []byte("\r\n")) {
		return "", fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return string(buf[:len(buf)-2]), nil
}

// truncated turns end-of-input inside a frame into a protocol error.
// Other errors (deadlines, resets) pass through.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated frame", ErrProtocol)
	}
	return err
}

func writeArray(w *bufio.Writer, parts ...[]byte) error {
	if _, err := w.WriteString("*" + strconv.Itoa(len(parts)) + "\r\n"); err != nil {
		return err
	}
	for _, p := range parts {
		if err := writeBulk(w, p); err != nil {
			return err
		}
	}
	return nil
}

func writeBulk(w *bufio.Writer, b []byte) error {
	if _, err := w.WriteString("$" + strconv.Itoa(len(b)) + "\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

// normalizeOp uppercases ASCII without allocating for already uppercased
// names.
func normalizeOp(b []byte) string {
	if bytes.ContainsAny(b, "abcdefghijklmnopqrstuvwxyz") {
		return strings.ToUpper(string(b))
	}
	return string(b)
}
