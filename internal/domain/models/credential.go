package models

import "time"

// Credential is the result of a code exchange or a refresh/exchange call.
// ExpiresAt is nil for non-expiring tokens; RefreshToken is empty for
// platforms that renew by exchanging the current access token instead.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scope        string
}

// Identity is the account information fetched from a platform after
// authorization. Metadata keeps the full platform payload, including the
// list of manageable pages or linked business accounts with their own
// sub-tokens, for later selection by publishers.
type Identity struct {
	UserID   string
	Username string
	Metadata map[string]any
}

// OAuth1Credential is the secondary signing pair some platforms require
// for media upload, distinct from the bearer token used for posting.
type OAuth1Credential struct {
	Token  string
	Secret string
}
