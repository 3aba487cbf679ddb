package providers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/syedkazim110/social-oauth-service/internal/config"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
)

// Facebook posts go to a managed page, so identity enumerates the pages
// the user administers and keeps their page tokens in account metadata.
type Facebook struct {
	graphAPI
}

func NewFacebook(log *slog.Logger, cfg config.PlatformConfig) *Facebook {
	return &Facebook{graphAPI{
		platform:     PlatformFacebook,
		log:          log,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		scopes: []string{
			"pages_manage_posts",
			"pages_read_engagement",
			"pages_show_list",
			"pages_read_user_content",
			"business_management",
			"public_profile",
		},
		authURL:  "https://www.facebook.com/v18.0/dialog/oauth",
		graphURL: "https://graph.facebook.com/v18.0",
		client:   &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
	}}
}

func (f *Facebook) Identity(ctx context.Context, accessToken string) (models.Identity, error) {
	const op = "providers.Facebook.Identity"
	log := f.log.With(
		logger.StringAttr("op", op),
	)

	var user struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	err := f.getJSON(ctx, "/me", url.Values{
		"fields":       {"id,name,email"},
		"access_token": {accessToken},
	}, &user)
	if err != nil {
		log.Error("user info call failed", logger.ErrAttr(err))
		return models.Identity{}, err
	}
	if user.ID == "" {
		return models.Identity{}, &Error{Platform: f.platform, Message: "identity response missing user id"}
	}

	var pages struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
			Category    string `json:"category"`
		} `json:"data"`
	}
	err = f.getJSON(ctx, "/me/accounts", url.Values{
		"fields":       {"id,name,access_token,category"},
		"access_token": {accessToken},
	}, &pages)
	if err != nil {
		log.Error("page enumeration failed", logger.ErrAttr(err))
		return models.Identity{}, err
	}

	pageList := make([]any, 0, len(pages.Data))
	for _, page := range pages.Data {
		pageList = append(pageList, map[string]any{
			"id":           page.ID,
			"name":         page.Name,
			"access_token": page.AccessToken,
			"category":     page.Category,
		})
	}
	if len(pageList) == 0 {
		log.Warn("no managed pages returned; posting requires at least one page with pages_manage_posts")
	}

	log.Info("fetched identity",
		logger.StringAttr("username", user.Name),
		slog.Int("pages", len(pageList)),
	)
	return models.Identity{
		UserID:   user.ID,
		Username: user.Name,
		Metadata: map[string]any{
			"email": user.Email,
			"pages": pageList,
		},
	}, nil
}
