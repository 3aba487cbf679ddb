package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/syedkazim110/social-oauth-service/internal/config"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"golang.org/x/oauth2"
)

// Twitter implements the authorization-code flow with PKCE and rotating
// refresh tokens.
type Twitter struct {
	log    *slog.Logger
	oauth  oauth2.Config
	apiURL string
	client *http.Client
}

func NewTwitter(log *slog.Logger, cfg config.TwitterConfig) *Twitter {
	return &Twitter{
		log: log,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access", "media.write"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://twitter.com/i/oauth2/authorize",
				TokenURL:  "https://api.twitter.com/2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiURL: "https://api.twitter.com/2",
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *Twitter) Name() string { return PlatformTwitter }

func (t *Twitter) RequiresProofKey() bool { return true }

func (t *Twitter) AuthorizationURL(state, challenge string) (string, error) {
	if challenge == "" {
		return "", &Error{Platform: t.Name(), Message: "proof-key challenge is required"}
	}
	return t.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

func (t *Twitter) ExchangeCode(ctx context.Context, code, verifier string) (models.Credential, error) {
	const op = "providers.Twitter.ExchangeCode"
	log := t.log.With(
		logger.StringAttr("op", op),
	)

	if verifier == "" {
		return models.Credential{}, &Error{Platform: t.Name(), Message: "proof-key verifier is required for code exchange"}
	}

	tok, err := t.oauth.Exchange(t.httpContext(ctx), code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
	)
	if err != nil {
		log.Error("code exchange failed", logger.ErrAttr(err))
		return models.Credential{}, t.wrapTokenError("code exchange failed", err)
	}

	log.Info("obtained access token")
	return t.credential(tok)
}

func (t *Twitter) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	const op = "providers.Twitter.Refresh"
	log := t.log.With(
		logger.StringAttr("op", op),
	)

	source := t.oauth.TokenSource(t.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := source.Token()
	if err != nil {
		log.Error("token refresh failed", logger.ErrAttr(err))
		return models.Credential{}, t.wrapTokenError("token refresh failed", err)
	}

	log.Info("access token refreshed")
	return t.credential(tok)
}

func (t *Twitter) Identity(ctx context.Context, accessToken string) (models.Identity, error) {
	const op = "providers.Twitter.Identity"
	log := t.log.With(
		logger.StringAttr("op", op),
	)

	u := fmt.Sprintf("%s/users/me?user.fields=%s", t.apiURL, url.QueryEscape("id,name,username,profile_image_url,verified"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := t.client.Do(req)
	if err != nil {
		log.Error("identity request failed", logger.ErrAttr(err))
		return models.Identity{}, &Error{Platform: t.Name(), Message: err.Error()}
	}

	var payload struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
			Verified        bool   `json:"verified"`
		} `json:"data"`
	}
	if err := decodeResponse(t.Name(), resp, &payload); err != nil {
		log.Error("identity call rejected", logger.ErrAttr(err))
		return models.Identity{}, err
	}
	if payload.Data.ID == "" {
		return models.Identity{}, &Error{Platform: t.Name(), StatusCode: resp.StatusCode, Message: "identity response missing user id"}
	}

	log.Info("fetched identity", logger.StringAttr("username", payload.Data.Username))
	return models.Identity{
		UserID:   payload.Data.ID,
		Username: payload.Data.Username,
		Metadata: map[string]any{
			"name":              payload.Data.Name,
			"profile_image_url": payload.Data.ProfileImageURL,
			"verified":          payload.Data.Verified,
		},
	}, nil
}

func (t *Twitter) Revoke(ctx context.Context, token string) bool {
	const op = "providers.Twitter.Revoke"
	log := t.log.With(
		logger.StringAttr("op", op),
	)

	form := url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
		"client_id":       {t.oauth.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/oauth2/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		log.Error("failed to build revoke request", logger.ErrAttr(err))
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.oauth.ClientID, t.oauth.ClientSecret)

	resp, err := t.client.Do(req)
	if err != nil {
		log.Error("revoke request failed", logger.ErrAttr(err))
		return false
	}
	if err := decodeResponse(t.Name(), resp, nil); err != nil {
		log.Error("revoke rejected", logger.ErrAttr(err))
		return false
	}

	log.Info("token revoked")
	return true
}

// httpContext pins the oauth2 transport to the provider's client so token
// endpoint calls share its timeout.
func (t *Twitter) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, t.client)
}

func (t *Twitter) credential(tok *oauth2.Token) (models.Credential, error) {
	if tok.AccessToken == "" {
		return models.Credential{}, &Error{Platform: t.Name(), Message: "token response missing access token"}
	}
	cred := models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        strings.Join(t.oauth.Scopes, " "),
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		cred.ExpiresAt = &expiry
	}
	return cred, nil
}

func (t *Twitter) wrapTokenError(message string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &Error{
			Platform:   t.Name(),
			StatusCode: retrieveErr.Response.StatusCode,
			Message:    fmt.Sprintf("%s: %s", message, string(retrieveErr.Body)),
		}
	}
	return &Error{Platform: t.Name(), Message: fmt.Sprintf("%s: %v", message, err)}
}
