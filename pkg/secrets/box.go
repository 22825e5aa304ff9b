// Package secrets encrypts OAuth2 client secrets at rest.
//
// Secrets are sealed with AES-256-GCM under a single key supplied via
// configuration. Rotating the key without re-encrypting stored secrets makes
// them undecryptable; the admin API warns about this when generating keys.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize is the AES-256 key size in bytes
const KeySize = 32

// ErrNotConfigured is returned when no encryption key was configured
var ErrNotConfigured = errors.New("secret encryption is not configured")

// ErrDecrypt is returned when a ciphertext cannot be decrypted, typically
// because the encryption key changed
var ErrDecrypt = errors.New("failed to decrypt secret: the encryption key may have changed")

// Box seals and opens secrets with a symmetric key
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a Box from a base64-encoded 32-byte key.
// An empty key yields a Box whose operations fail with ErrNotConfigured,
// so deployments without SSO configured still start.
func NewBox(encodedKey string) (*Box, error) {
	if encodedKey == "" {
		return &Box{}, nil
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Box{aead: aead}, nil
}

// Configured reports whether an encryption key is loaded
func (b *Box) Configured() bool {
	return b.aead != nil
}

// Encrypt seals a plaintext secret, returning base64 output
func (b *Box) Encrypt(plaintext string) (string, error) {
	if b.aead == nil {
		return "", ErrNotConfigured
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed secret
func (b *Box) Decrypt(encoded string) (string, error) {
	if b.aead == nil {
		return "", ErrNotConfigured
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(sealed) < b.aead.NonceSize() {
		return "", ErrDecrypt
	}

	nonce, ciphertext := sealed[:b.aead.NonceSize()], sealed[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plaintext), nil
}

// GenerateKey returns a fresh base64-encoded 32-byte key
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
