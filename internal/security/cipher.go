// Package security is the encryption boundary between the engine and its
// stores. Repositories call it explicitly before writes and after reads;
// the key is taken from configuration once, at construction.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// ErrMissingEncryptionKey aborts startup when no key is configured.
var ErrMissingEncryptionKey = errors.New("encryption key is not configured")

// Cipher encrypts and decrypts sensitive payloads.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
	EncryptString(plaintext string) (string, error)
	DecryptString(encoded string) (string, error)
}

// AESGCM implements Cipher with AES-256-GCM. A blob is nonce || ciphertext || tag.
type AESGCM struct {
	aead  cipher.AEAD
	nonce io.Reader
}

// NewCipher builds an AES-256-GCM cipher from the configured key.
func NewCipher(cfg config.EncryptionConfig) (*AESGCM, error) {
	if cfg.Key == "" {
		return nil, ErrMissingEncryptionKey
	}
	key, err := cfg.KeyBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	return NewCipherFromKey(key)
}

// NewCipherFromKey builds the cipher from a raw 32 byte key.
func NewCipherFromKey(key []byte) (*AESGCM, error) {
	if len(key) == 0 {
		return nil, ErrMissingEncryptionKey
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCM{aead: aead, nonce: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *AESGCM) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(c.nonce, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Any tampering fails closed with
// shared.DecryptionFailedError and no plaintext.
func (c *AESGCM) Decrypt(blob []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(blob) < nonceSize+c.aead.Overhead() {
		return nil, shared.DecryptionFailedError{Reason: "ciphertext too short"}
	}

	plaintext, err := c.aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, shared.DecryptionFailedError{Reason: "authentication failed"}
	}
	return plaintext, nil
}

// EncryptString encrypts and base64-encodes for text columns.
func (c *AESGCM) EncryptString(plaintext string) (string, error) {
	blob, err := c.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString reverses EncryptString.
func (c *AESGCM) DecryptString(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", shared.DecryptionFailedError{Reason: "invalid encoding"}
	}
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
