package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// DoWithRetry executes the function fn with retry attempts in case of an error.
// Parameters:
// fn - the function to be executed.
// attempts - the number of execution attempts.
// delay - the delay between attempts.
func DoWithRetry(fn func() error, attempts int, delay time.Duration) (err error) {
	for attempts > 0 {
		if err = fn(); err != nil {

			attempts--
			time.Sleep(delay)
			continue
		}
		return nil
	}
	return err
}

// RandomToken returns a base64url-encoded token built from n random bytes.
// n must be at least 16 so state tokens carry >=128 bits of entropy.
func RandomToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token length %d is below the 16-byte minimum", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ProofKeyChallenge derives the S256 challenge for a proof-key verifier:
// base64url(SHA-256(verifier)) with padding stripped.
func ProofKeyChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// MaskToken masks a secret for logging, keeping only a short prefix.
// Example: sk-abcdef1234 -> sk-a*******
func MaskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-4)
}
