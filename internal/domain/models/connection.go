package models

import "time"

// Connection is the durable per-brand-per-platform credential record.
// Token fields hold ciphertext as stored; a Connection loaded with
// decryption enabled holds plaintext instead.
type Connection struct {
	ID               int64          `json:"id"`
	BrandID          int64          `json:"brand_id"`
	Platform         string         `json:"platform"`
	AccessToken      string         `json:"-"`
	RefreshToken     *string        `json:"-"`
	ExpiresAt        *time.Time     `json:"expires_at"`
	PlatformUserID   string         `json:"platform_user_id"`
	PlatformUsername string         `json:"platform_username"`
	AccountMetadata  map[string]any `json:"account_metadata"`
	OAuth1Token      *string        `json:"-"`
	OAuth1Secret     *string        `json:"-"`
	OAuth1Enabled    bool           `json:"oauth1_enabled"`
	IsActive         bool           `json:"is_active"`
	ConnectionError  *string        `json:"connection_error"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
