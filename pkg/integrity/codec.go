package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Size is the digest length in bytes for every supported algorithm.
const Size = 32

// Algorithm names a digest function.
type Algorithm string

const (
	SHA256     Algorithm = "sha256"
	BLAKE2b256 Algorithm = "blake2b-256"
)

// ErrMalformedDigest is returned by ParseDigest for input that is not a
// hex-encoded digest of the right length.
var ErrMalformedDigest = errors.New("integrity: malformed digest")

// Digest is a fixed-size value digest.
type Digest [Size]byte

// String returns the lowercase hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is all zero bytes.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes a hex digest as produced by Digest.String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(Size) {
		return d, fmt.Errorf("%w: length %d", ErrMalformedDigest, len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
	return d, nil
}

// Codec stamps and verifies digests with one algorithm.
// A Codec is stateless and safe for concurrent use.
type Codec struct {
	alg Algorithm
	sum func([]byte) [Size]byte
}

// New returns a Codec for the named algorithm. An empty name selects SHA-256.
func New(alg Algorithm) (*Codec, error) {
	switch Algorithm(strings.ToLower(string(alg))) {
	case "", SHA256:
		return &Codec{alg: SHA256, sum: sha256.Sum256}, nil
	case BLAKE2b256, "blake2b":
		return &Codec{alg: BLAKE2b256, sum: blake2b.Sum256}, nil
	default:
		return nil, fmt.Errorf("integrity: unsupported algorithm %q", alg)
	}
}

// Default returns the SHA-256 codec.
func Default() *Codec {
	c, _ := New(SHA256)
	return c
}

// Algorithm returns the codec's algorithm name.
func (c *Codec) Algorithm() Algorithm {
	return c.alg
}

// Stamp computes the digest of value.
func (c *Codec) Stamp(value []byte) Digest {
	return Digest(c.sum(value))
}

// Verify reports whether digest matches value.
// The comparison runs in constant time over the digest bytes.
func (c *Codec) Verify(value []byte, digest Digest) bool {
	actual := c.Stamp(value)
	return subtle.ConstantTimeCompare(actual[:], digest[:]) == 1
}
