package postgres

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// EncryptedFieldCodec encrypts individual string fields (User.phone,
// User.email) at rest with AES-256-GCM. This is a deliberate exception to
// "wire a third-party library" — no example repo or ecosystem package in
// the retrieval pack offers reversible field-level encryption; the
// standard library's AEAD primitives are the idiomatic choice here (see
// DESIGN.md).
type EncryptedFieldCodec struct {
	gcm cipher.AEAD
}

// NewEncryptedFieldCodec builds a codec from a 32-byte key.
func NewEncryptedFieldCodec(key []byte) (*EncryptedFieldCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("fieldcrypto: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: creating GCM: %w", err)
	}
	return &EncryptedFieldCodec{gcm: gcm}, nil
}

// Encrypt returns a base64-encoded nonce||ciphertext. An empty plaintext
// encrypts to an empty string (nullable fields stay empty, not garbled).
func (c *EncryptedFieldCodec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("fieldcrypto: generating nonce: %w", err)
	}
	ciphertext := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (c *EncryptedFieldCodec) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("fieldcrypto: decoding base64: %w", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("fieldcrypto: ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("fieldcrypto: decrypting: %w", err)
	}
	return string(plaintext), nil
}
