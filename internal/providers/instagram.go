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

// Instagram authorizes through the Facebook dialog with the same app
// credentials; the account that matters is the business account linked
// to a managed page. Identity walks the pages, keeps every linked
// account in metadata, and picks the first one as primary.
type Instagram struct {
	graphAPI
}

func NewInstagram(log *slog.Logger, cfg config.PlatformConfig) *Instagram {
	return &Instagram{graphAPI{
		platform:     PlatformInstagram,
		log:          log,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		scopes: []string{
			"instagram_basic",
			"instagram_content_publish",
			"pages_show_list",
			"pages_read_engagement",
			"business_management",
			"public_profile",
		},
		authURL:  "https://www.facebook.com/v18.0/dialog/oauth",
		graphURL: "https://graph.facebook.com/v18.0",
		client:   &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
	}}
}

func (i *Instagram) Identity(ctx context.Context, accessToken string) (models.Identity, error) {
	const op = "providers.Instagram.Identity"
	log := i.log.With(
		logger.StringAttr("op", op),
	)

	var pages struct {
		Data []struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			AccessToken     string `json:"access_token"`
			BusinessAccount *struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	err := i.getJSON(ctx, "/me/accounts", url.Values{
		"fields":       {"id,name,access_token,instagram_business_account"},
		"access_token": {accessToken},
	}, &pages)
	if err != nil {
		log.Error("page enumeration failed", logger.ErrAttr(err))
		return models.Identity{}, err
	}

	var accounts []any
	var primaryID, primaryUsername, primaryPageToken string
	for _, page := range pages.Data {
		if page.BusinessAccount == nil {
			continue
		}

		var details struct {
			Username string `json:"username"`
			Name     string `json:"name"`
		}
		err := i.getJSON(ctx, "/"+page.BusinessAccount.ID, url.Values{
			"fields":       {"username,name"},
			"access_token": {accessToken},
		}, &details)
		if err != nil {
			log.Error("business account lookup failed", logger.ErrAttr(err),
				logger.StringAttr("page_id", page.ID))
			return models.Identity{}, err
		}

		accounts = append(accounts, map[string]any{
			"ig_account_id": page.BusinessAccount.ID,
			"username":      details.Username,
			"name":          details.Name,
			"page_id":       page.ID,
			"page_name":     page.Name,
			"page_token":    page.AccessToken,
		})
		if primaryID == "" {
			primaryID = page.BusinessAccount.ID
			primaryUsername = details.Username
			primaryPageToken = page.AccessToken
		}
	}

	if primaryID == "" {
		return models.Identity{}, &Error{Platform: i.platform, Message: "no linked business account found on any managed page"}
	}

	log.Info("fetched identity",
		logger.StringAttr("username", primaryUsername),
		slog.Int("accounts", len(accounts)),
	)
	return models.Identity{
		UserID:   primaryID,
		Username: primaryUsername,
		Metadata: map[string]any{
			"all_accounts": accounts,
			"page_token":   primaryPageToken,
		},
	}, nil
}
