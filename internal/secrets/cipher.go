// Package secrets encrypts user API keys at rest.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	version  = "v1"
	hkdfInfo = "allergy-menu-assistant/user-api-key"
)

var (
	ErrEmptySecret      = errors.New("secrets: encryption secret is empty")
	ErrMalformed        = errors.New("secrets: malformed ciphertext")
	ErrDecryptionFailed = errors.New("secrets: decryption failed")
)

// Cipher is a symmetric AEAD keyed by a process-wide secret.
// Ciphertexts are "v1:" followed by base64url(nonce || sealed).
type Cipher struct {
	aead interface {
		NonceSize() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	random io.Reader
}

// NewCipher derives a 256-bit XChaCha20-Poly1305 key from secret with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: init aead: %w", err)
	}
	return &Cipher{aead: aead, random: rand.Reader}, nil
}

// Encrypt seals plaintext. Every call uses a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(version))
	return version + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	prefix, payload, ok := strings.Cut(ciphertext, ":")
	if !ok || prefix != version {
		return "", ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrMalformed
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(prefix))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
