// Package sealbox seals and opens the encrypted envelopes that manifests and
// chunks are stored as.
//
// Envelope layout: a 12-byte nonce, followed by the ciphertext, followed by
// the 16-byte authentication tag. The cipher is ChaCha20-Poly1305 with a
// 32-byte key. Authentication covers the whole ciphertext, so any bit flip in
// transit or at rest fails the open as a unit.
//
// Writers may compress the plaintext before sealing; Open detects zstd and
// lz4 frames by their magic numbers and inflates transparently after a
// successful authentication.
//
// Key material never appears in errors or logs produced by this package.
package sealbox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the required session key length in bytes.
	KeySize = chacha20poly1305.KeySize

	// NonceSize is the length of the nonce prefix in bytes.
	NonceSize = chacha20poly1305.NonceSize

	// Overhead is the length of the authentication tag in bytes.
	Overhead = chacha20poly1305.Overhead

	// minEnvelopeSize is a nonce plus a tag: the smallest envelope that can
	// carry an empty plaintext.
	minEnvelopeSize = NonceSize + Overhead
)

var (
	// ErrInvalidKeySize is returned when the key is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.New("sealbox: key must be 32 bytes")

	// ErrEnvelopeTooShort is returned when the envelope cannot even hold a
	// nonce and a tag.
	ErrEnvelopeTooShort = errors.New("sealbox: envelope shorter than nonce and tag")

	// ErrOpenFailed is returned when authentication fails. A wrong key and a
	// corrupted envelope are indistinguishable here.
	ErrOpenFailed = errors.New("sealbox: authentication failed")

	// ErrInvalidText is returned by Open when the authenticated plaintext is
	// not valid UTF-8. The envelope itself was genuine; the payload is the
	// problem.
	ErrInvalidText = errors.New("sealbox: plaintext is not valid UTF-8")
)

// Open authenticates and decrypts an envelope, returning its plaintext as a
// string. The plaintext must decode to valid UTF-8; structured payloads that
// fail this check surface ErrInvalidText rather than an authentication error.
func Open(envelope, key []byte) (string, error) {
	b, err := OpenBytes(envelope, key)
	if err != nil {
		return "", err
	}

	if !utf8.Valid(b) {
		return "", ErrInvalidText
	}

	return string(b), nil
}

// OpenBytes authenticates and decrypts an envelope, returning the raw
// plaintext. Compressed plaintext (zstd or lz4 framing) is inflated before
// return.
func OpenBytes(envelope, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	if len(envelope) < minEnvelopeSize {
		return nil, ErrEnvelopeTooShort
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("sealbox: %w", err)
	}

	nonce, ciphertext := envelope[:NonceSize], envelope[NonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpenFailed
	}

	return inflate(plaintext)
}

// Seal encrypts plaintext under key with a fresh random nonce and returns the
// envelope. It is the exact inverse of OpenBytes and exists for writers and
// test fixtures.
func Seal(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("sealbox: %w", err)
	}

	envelope := make([]byte, NonceSize, NonceSize+len(plaintext)+Overhead)
	if _, err := rand.Read(envelope[:NonceSize]); err != nil {
		return nil, fmt.Errorf("sealbox: nonce: %w", err)
	}

	return aead.Seal(envelope, envelope[:NonceSize], plaintext, nil), nil
}
