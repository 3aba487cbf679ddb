// Package providers implements the per-platform OAuth capability set:
// building authorization URLs, exchanging authorization codes, renewing
// credentials, fetching account identity, and revoking tokens.
//
// The platform set is closed and small, so providers live behind one
// interface in a registry instead of an open-ended hierarchy. Two renewal
// mechanisms exist: twitter uses real refresh tokens, facebook and
// instagram exchange the current access token for a new long-lived one.
// Refresh is one semantic operation either way; which token feeds it is
// the connection manager's single named rule.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
)

const (
	PlatformTwitter   = "twitter"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
)

var ErrPlatformNotSupported = errors.New("platform not supported")

type Provider interface {
	Name() string

	// RequiresProofKey reports whether the authorization flow needs a
	// PKCE verifier/challenge pair.
	RequiresProofKey() bool

	// AuthorizationURL builds the redirect URL for the given state
	// token. challenge is empty for platforms without proof-key exchange.
	AuthorizationURL(state, challenge string) (string, error)

	// ExchangeCode trades an authorization code for a credential.
	// verifier is the stored proof-key verifier, empty when unused.
	ExchangeCode(ctx context.Context, code, verifier string) (models.Credential, error)

	// Refresh renews a credential. Refresh-token platforms receive the
	// stored refresh token; token-exchange platforms receive the current
	// access token in the same slot.
	Refresh(ctx context.Context, token string) (models.Credential, error)

	// Identity fetches the platform account behind an access token,
	// selecting a primary sub-account deterministically where the
	// platform has a page or business-account indirection.
	Identity(ctx context.Context, accessToken string) (models.Identity, error)

	// Revoke is best-effort; failures are logged, never propagated.
	Revoke(ctx context.Context, token string) bool
}

// Error is the single failure shape for provider calls: network errors,
// non-2xx responses, and responses missing required fields.
type Error struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider: %s (status %d)", e.Platform, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s provider: %s", e.Platform, e.Message)
}

// Registry holds the closed platform set.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Provider(platform string) (Provider, error) {
	p, ok := r.providers[platform]
	if !ok {
		return nil, ErrPlatformNotSupported
	}
	return p, nil
}

func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// decodeResponse drains a platform response into dst, converting non-2xx
// statuses into *Error with a body excerpt. No silent defaults: a missing
// required field is the caller's check, a bad status is handled here.
func decodeResponse(platform string, resp *http.Response, dst any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Platform: platform, StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Platform: platform, StatusCode: resp.StatusCode, Message: string(body)}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &Error{Platform: platform, StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}
