package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
)

// facebookTokenTTL is the documented lifetime of a long-lived Graph API
// token when the response omits expires_in.
const facebookTokenTTL = 60 * 24 * time.Hour

// graphAPI holds the flow both Meta-backed platforms share: the
// authorization code buys a short-lived token, which is immediately
// exchanged for a long-lived one. There are no refresh tokens; renewal
// re-exchanges the current access token.
type graphAPI struct {
	platform     string
	log          *slog.Logger
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	authURL      string
	graphURL     string
	client       *http.Client
	now          func() time.Time
}

type graphToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (g *graphAPI) Name() string { return g.platform }

func (g *graphAPI) RequiresProofKey() bool { return false }

func (g *graphAPI) AuthorizationURL(state, _ string) (string, error) {
	params := url.Values{
		"client_id":     {g.clientID},
		"redirect_uri":  {g.redirectURI},
		"scope":         {strings.Join(g.scopes, ",")},
		"response_type": {"code"},
		"state":         {state},
	}
	return g.authURL + "?" + params.Encode(), nil
}

func (g *graphAPI) ExchangeCode(ctx context.Context, code, _ string) (models.Credential, error) {
	const op = "providers.graph.ExchangeCode"
	log := g.log.With(
		logger.StringAttr("op", op),
		logger.StringAttr("platform", g.platform),
	)

	short, err := g.fetchToken(ctx, url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"redirect_uri":  {g.redirectURI},
		"code":          {code},
	})
	if err != nil {
		log.Error("code exchange failed", logger.ErrAttr(err))
		return models.Credential{}, err
	}
	log.Info("received short-lived token")

	cred, err := g.exchangeForLongLived(ctx, short.AccessToken)
	if err != nil {
		log.Error("long-lived exchange failed", logger.ErrAttr(err))
		return models.Credential{}, err
	}
	log.Info("exchanged for long-lived token")
	return cred, nil
}

// Refresh takes the current access token, not a refresh token, and
// exchanges it for a fresh long-lived token.
func (g *graphAPI) Refresh(ctx context.Context, accessToken string) (models.Credential, error) {
	const op = "providers.graph.Refresh"
	log := g.log.With(
		logger.StringAttr("op", op),
		logger.StringAttr("platform", g.platform),
	)

	cred, err := g.exchangeForLongLived(ctx, accessToken)
	if err != nil {
		log.Error("token exchange failed", logger.ErrAttr(err))
		return models.Credential{}, err
	}
	log.Info("access token exchanged")
	return cred, nil
}

func (g *graphAPI) Revoke(ctx context.Context, token string) bool {
	const op = "providers.graph.Revoke"
	log := g.log.With(
		logger.StringAttr("op", op),
		logger.StringAttr("platform", g.platform),
	)

	u := fmt.Sprintf("%s/me/permissions?access_token=%s", g.graphURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		log.Error("failed to build revoke request", logger.ErrAttr(err))
		return false
	}

	resp, err := g.client.Do(req)
	if err != nil {
		log.Error("revoke request failed", logger.ErrAttr(err))
		return false
	}
	if err := decodeResponse(g.platform, resp, nil); err != nil {
		log.Error("revoke rejected", logger.ErrAttr(err))
		return false
	}

	log.Info("token revoked")
	return true
}

func (g *graphAPI) exchangeForLongLived(ctx context.Context, accessToken string) (models.Credential, error) {
	tok, err := g.fetchToken(ctx, url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {g.clientID},
		"client_secret":     {g.clientSecret},
		"fb_exchange_token": {accessToken},
	})
	if err != nil {
		return models.Credential{}, err
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if tok.ExpiresIn == 0 {
		ttl = facebookTokenTTL
	}
	expiresAt := g.now().Add(ttl)

	return models.Credential{
		AccessToken: tok.AccessToken,
		ExpiresAt:   &expiresAt,
		Scope:       strings.Join(g.scopes, ","),
	}, nil
}

func (g *graphAPI) fetchToken(ctx context.Context, params url.Values) (graphToken, error) {
	u := fmt.Sprintf("%s/oauth/access_token?%s", g.graphURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return graphToken{}, &Error{Platform: g.platform, Message: err.Error()}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return graphToken{}, &Error{Platform: g.platform, Message: err.Error()}
	}

	var tok graphToken
	if err := decodeResponse(g.platform, resp, &tok); err != nil {
		return graphToken{}, err
	}
	if tok.AccessToken == "" {
		return graphToken{}, &Error{Platform: g.platform, StatusCode: resp.StatusCode, Message: "token response missing access token"}
	}
	return tok, nil
}

// getJSON performs an authenticated Graph API read.
func (g *graphAPI) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	u := fmt.Sprintf("%s%s?%s", g.graphURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &Error{Platform: g.platform, Message: err.Error()}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &Error{Platform: g.platform, Message: err.Error()}
	}
	return decodeResponse(g.platform, resp, dst)
}
