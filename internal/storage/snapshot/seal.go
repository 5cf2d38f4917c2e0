package snapshot

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Supported ciphers.
const (
	CipherChaCha20 = "chacha20-poly1305"
	CipherAESGCM   = "aes-256-gcm"
)

// Sealing errors.
var (
	ErrPassphraseTooWeak = errors.New("snapshot: passphrase too weak (minimum 8 characters)")
	ErrDecryptionFailed  = errors.New("snapshot: decryption failed - wrong passphrase or corrupted data")
	ErrPassphraseNeeded  = errors.New("snapshot: sealed snapshot and no passphrase configured")
)

const (
	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the per-file Argon2id salt length.
	SaltLength = 16

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// sealer derives per-salt keys from one passphrase. The key for the
// manager's own salt is derived once; other salts are derived on demand.
type sealer struct {
	passphrase []byte
	cipherName string
	salt       []byte
	key        []byte
}

func newSealer(passphrase []byte, cipherName string) (*sealer, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if cipherName == "" {
		cipherName = CipherChaCha20
	}
	if _, err := newAEAD(cipherName, make([]byte, argon2KeyLen)); err != nil {
		return nil, err
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("snapshot: generate salt: %w", err)
	}

	return &sealer{
		passphrase: append([]byte(nil), passphrase...),
		cipherName: cipherName,
		salt:       salt,
		key:        deriveKey(passphrase, salt),
	}, nil
}

// seal encrypts plain with the sealer's own salt and cipher. The returned
// block is nonce | ciphertext.
func (s *sealer) seal(plain, aad []byte) ([]byte, error) {
	aead, err := newAEAD(s.cipherName, s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, aad), nil
}

// open decrypts a block written with the given salt and cipher.
func (s *sealer) open(cipherName string, salt, sealed, aad []byte) ([]byte, error) {
	key := s.key
	if !bytes.Equal(salt, s.salt) {
		key = deriveKey(s.passphrase, salt)
	}
	aead, err := newAEAD(cipherName, key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

func newAEAD(name string, key []byte) (cipher.AEAD, error) {
	switch name {
	case CipherChaCha20:
		return chacha20poly1305.New(key)
	case CipherAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("snapshot: unsupported cipher: %s", name)
	}
}
