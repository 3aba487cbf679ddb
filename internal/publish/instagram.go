package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/providers"
)

// Instagram publishes through the two-step container flow: create a
// media container from a public image URL, then publish the container.
// The platform fetches the image itself, so a post without a reachable
// ImageURL cannot be published.
type Instagram struct {
	log      *slog.Logger
	client   *http.Client
	graphURL string
}

func NewInstagram(log *slog.Logger) *Instagram {
	return &Instagram{
		log:      log,
		client:   &http.Client{Timeout: 60 * time.Second},
		graphURL: graphPublishURL,
	}
}

func (i *Instagram) Platform() string { return providers.PlatformInstagram }

func (i *Instagram) Publish(ctx context.Context, conn models.Connection, post Post) (models.PostResult, error) {
	const op = "publish.Instagram.Publish"
	log := i.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", conn.BrandID),
	)

	if post.ImageURL == "" {
		return models.PostResult{}, &Error{
			Platform: providers.PlatformInstagram,
			Message:  "instagram posts require a publicly reachable image url",
		}
	}

	pageToken, _ := conn.AccountMetadata["page_token"].(string)
	if pageToken == "" {
		return models.PostResult{}, &Error{
			Platform: providers.PlatformInstagram,
			Message:  "connection metadata missing page token",
		}
	}

	containerID, err := i.callGraph(ctx, fmt.Sprintf("/%s/media", conn.PlatformUserID), url.Values{
		"image_url":    {post.ImageURL},
		"caption":      {post.Caption},
		"access_token": {pageToken},
	})
	if err != nil {
		return models.PostResult{}, err
	}
	log.Debug("media container created", logger.StringAttr("container_id", containerID))

	postID, err := i.callGraph(ctx, fmt.Sprintf("/%s/media_publish", conn.PlatformUserID), url.Values{
		"creation_id":  {containerID},
		"access_token": {pageToken},
	})
	if err != nil {
		return models.PostResult{}, err
	}

	log.Info("instagram post published", logger.StringAttr("post_id", postID))
	return models.PostResult{
		PostID:   postID,
		URL:      fmt.Sprintf("https://www.instagram.com/%s/", conn.PlatformUsername),
		Platform: providers.PlatformInstagram,
		Caption:  post.Caption,
		Status:   "published",
	}, nil
}

func (i *Instagram) callGraph(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.graphURL+path, nil)
	if err != nil {
		return "", &Error{Platform: providers.PlatformInstagram, Message: err.Error()}
	}
	req.URL.RawQuery = form.Encode()

	resp, err := i.client.Do(req)
	if err != nil {
		return "", &Error{Platform: providers.PlatformInstagram, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{
			Platform:   providers.PlatformInstagram,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &Error{Platform: providers.PlatformInstagram, Message: err.Error()}
	}
	if created.ID == "" {
		return "", &Error{Platform: providers.PlatformInstagram, Message: "response missing id"}
	}
	return created.ID, nil
}
