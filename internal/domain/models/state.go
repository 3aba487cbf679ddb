package models

import "time"

// OAuthState is the ephemeral anti-CSRF record tying an authorization
// request to its callback. A row is marked used exactly once; expired or
// used rows are treated as absent.
type OAuthState struct {
	StateToken    string
	Platform      string
	BrandID       int64
	CodeVerifier  *string
	CodeChallenge *string
	ExpiresAt     time.Time
	Used          bool
}
