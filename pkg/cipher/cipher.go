// Package cipher encrypts OAuth tokens before they reach persistent
// storage. It wraps fernet, which the stored ciphertexts were produced
// with, so existing rows stay readable.
package cipher

import (
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

// ErrDecryptionFailed marks a stored credential as unusable. Callers treat
// it as "re-authorization required", never as transient.
var ErrDecryptionFailed = errors.New("ciphertext cannot be decrypted")

type Cipher struct {
	key *fernet.Key
}

// New builds a Cipher from a base64url-encoded 32-byte key. Key loading
// happens once at startup; an invalid key is fatal there, not per call.
func New(encodedKey string) (*Cipher, error) {
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("cipher: invalid encryption key: %w", err)
	}
	return &Cipher{key: key}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	token, err := fernet.EncryptAndSign([]byte(plaintext), c.key)
	if err != nil {
		return "", fmt.Errorf("cipher: encrypt: %w", err)
	}
	return string(token), nil
}

// Decrypt returns ErrDecryptionFailed for corrupted or foreign
// ciphertext. The token's own timestamp is not enforced; expiry lives in
// the connection record.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	plaintext := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, []*fernet.Key{c.key})
	if plaintext == nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey produces a new random key in the encoding New accepts.
func GenerateKey() (string, error) {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		return "", fmt.Errorf("cipher: generate key: %w", err)
	}
	return key.Encode(), nil
}
