package domain

import (
	"fmt"
	"strings"
)

// Default shape bounds.
const (
	DefaultMaxKeyLen    = 256
	DefaultMaxValueSize = 512 * 1024
	MaxClientIDLen      = 64
)

// ValidateKey checks key length and charset.
// Keys are case-sensitive; allowed bytes are ASCII letters, digits, space
// and "_.:/@-". A key made only of spaces is rejected.
func ValidateKey(key string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLen
	}
	if key == "" {
		return ErrInvalidArgument.WithDetails("empty key")
	}
	if len(key) > maxLen {
		return ErrKeyTooLong.WithDetails(fmt.Sprintf("%d bytes, limit %d", len(key), maxLen))
	}
	for i := 0; i < len(key); i++ {
		if !isKeyByte(key[i]) {
			return ErrInvalidArgument.WithDetails(fmt.Sprintf("invalid key byte 0x%02x at offset %d", key[i], i))
		}
	}
	if strings.TrimSpace(key) == "" {
		return ErrInvalidArgument.WithDetails("blank key")
	}
	return nil
}

// ValidateValue checks the value size bound.
func ValidateValue(value []byte, maxSize int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxValueSize
	}
	if len(value) > maxSize {
		return ErrValueTooLarge.WithDetails(fmt.Sprintf("%d bytes, limit %d", len(value), maxSize))
	}
	return nil
}

// SanitizeClientID keeps only ASCII letters and digits of id and truncates
// the result to MaxClientIDLen. It returns an error if nothing is left.
func SanitizeClientID(id string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(id) && b.Len() < MaxClientIDLen; i++ {
		c := id[i]
		if isAlnum(c) {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", ErrInvalidArgument.WithDetails("client id must contain letters or digits")
	}
	return b.String(), nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isKeyByte(c byte) bool {
	if isAlnum(c) {
		return true
	}
	switch c {
	case ' ', '_', '.', ':', '/', '@', '-':
		return true
	}
	return false
}
