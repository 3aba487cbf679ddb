package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/dghubble/oauth1"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/providers"
)

// maxTweetLength is the hard caption limit; longer captions are
// truncated, not rejected.
const maxTweetLength = 280

const createTweetURL = "https://api.twitter.com/2/tweets"

// Twitter publishes tweets with optional media. The create-post call
// uses the OAuth2 bearer token; media upload goes through the chunked
// session signed with the connection's OAuth1 pair.
type Twitter struct {
	log            *slog.Logger
	consumerKey    string
	consumerSecret string
	client         *http.Client
	createURL      string
	uploader       func(conn models.Connection) *chunkUploader
}

func NewTwitter(log *slog.Logger, consumerKey, consumerSecret string) *Twitter {
	t := &Twitter{
		log:            log,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		client:         &http.Client{Timeout: 30 * time.Second},
		createURL:      createTweetURL,
	}
	t.uploader = t.signedUploader
	return t
}

func (t *Twitter) Platform() string { return providers.PlatformTwitter }

func (t *Twitter) Publish(ctx context.Context, conn models.Connection, post Post) (models.PostResult, error) {
	const op = "publish.Twitter.Publish"
	log := t.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", conn.BrandID),
	)

	caption := truncateCaption(post.Caption, maxTweetLength)

	var mediaIDs []string
	if len(post.ImageData) > 0 {
		if conn.OAuth1Token == nil || conn.OAuth1Secret == nil {
			return models.PostResult{}, &Error{
				Platform: providers.PlatformTwitter,
				Message:  "media upload requires an attached signing credential",
			}
		}

		mediaID, err := t.uploader(conn).Upload(ctx, post.ImageData, "image/jpeg")
		if err != nil {
			return models.PostResult{}, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	payload := map[string]any{"text": caption}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return models.PostResult{}, &Error{Platform: providers.PlatformTwitter, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.createURL, bytes.NewReader(body))
	if err != nil {
		return models.PostResult{}, &Error{Platform: providers.PlatformTwitter, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return models.PostResult{}, &Error{Platform: providers.PlatformTwitter, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.PostResult{}, &Error{
			Platform:   providers.PlatformTwitter,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return models.PostResult{}, &Error{Platform: providers.PlatformTwitter, Message: err.Error()}
	}
	if created.Data.ID == "" {
		return models.PostResult{}, &Error{Platform: providers.PlatformTwitter, Message: "response missing tweet id"}
	}

	log.Info("tweet published", logger.StringAttr("post_id", created.Data.ID))
	return models.PostResult{
		PostID:   created.Data.ID,
		URL:      fmt.Sprintf("https://twitter.com/%s/status/%s", conn.PlatformUsername, created.Data.ID),
		Platform: providers.PlatformTwitter,
		Caption:  caption,
		Status:   "published",
	}, nil
}

func (t *Twitter) signedUploader(conn models.Connection) *chunkUploader {
	cfg := oauth1.NewConfig(t.consumerKey, t.consumerSecret)
	token := oauth1.NewToken(*conn.OAuth1Token, *conn.OAuth1Secret)
	return newChunkUploader(t.log, cfg.Client(context.Background(), token))
}

// truncateCaption cuts on runes, reserving room for the ellipsis.
func truncateCaption(caption string, limit int) string {
	runes := []rune(caption)
	if len(runes) <= limit {
		return caption
	}
	return string(runes[:limit-3]) + "..."
}
