// internal/common/crypto/crypto.go
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
)

const KeySize = 32

var ErrCiphertextTooShort = errors.New("CIPHERTEXT_TOO_SHORT")

// Cipher seals credentials with AES-256-GCM. Ciphertexts are nonce || sealed.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, apperrors.NewEncryptionKeyError(fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextTooShort
	}
	plain, err := c.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}

// LoadKey decodes the configured key (64 hex chars or base64 of 32 bytes).
// Outside production a missing key is replaced by a random one; anything
// sealed with it is unreadable after a restart.
func LoadKey(encoded string, production bool, log logger.Logger) ([]byte, error) {
	if encoded == "" {
		if production {
			return nil, apperrors.NewEncryptionKeyError("ENCRYPTION_KEY is required in production")
		}
		key := make([]byte, KeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
		log.Warn("ENCRYPTION_KEY not set, using an ephemeral key; stored Jira tokens will not survive a restart", nil)
		return key, nil
	}

	if key, err := hex.DecodeString(encoded); err == nil && len(key) == KeySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == KeySize {
		return key, nil
	}
	return nil, apperrors.NewEncryptionKeyError("ENCRYPTION_KEY must be 32 bytes, hex or base64 encoded")
}
