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

const graphPublishURL = "https://graph.facebook.com/v18.0"

// Facebook publishes to the first managed page stored in the
// connection's account metadata, using that page's own access token.
type Facebook struct {
	log      *slog.Logger
	client   *http.Client
	graphURL string
}

func NewFacebook(log *slog.Logger) *Facebook {
	return &Facebook{
		log:      log,
		client:   &http.Client{Timeout: 30 * time.Second},
		graphURL: graphPublishURL,
	}
}

func (f *Facebook) Platform() string { return providers.PlatformFacebook }

func (f *Facebook) Publish(ctx context.Context, conn models.Connection, post Post) (models.PostResult, error) {
	const op = "publish.Facebook.Publish"
	log := f.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", conn.BrandID),
	)

	pageID, pageToken, err := firstPage(conn.AccountMetadata)
	if err != nil {
		return models.PostResult{}, &Error{Platform: providers.PlatformFacebook, Message: err.Error()}
	}

	var endpoint string
	form := url.Values{"access_token": {pageToken}}
	if post.ImageURL != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", f.graphURL, pageID)
		form.Set("url", post.ImageURL)
		form.Set("caption", post.Caption)
	} else {
		endpoint = fmt.Sprintf("%s/%s/feed", f.graphURL, pageID)
		form.Set("message", post.Caption)
	}

	postID, err := f.postForm(ctx, endpoint, form)
	if err != nil {
		return models.PostResult{}, err
	}

	log.Info("facebook post published",
		logger.StringAttr("page_id", pageID),
		logger.StringAttr("post_id", postID),
	)
	return models.PostResult{
		PostID:   postID,
		URL:      fmt.Sprintf("https://www.facebook.com/%s", postID),
		Platform: providers.PlatformFacebook,
		Caption:  post.Caption,
		Status:   "published",
	}, nil
}

func (f *Facebook) postForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", &Error{Platform: providers.PlatformFacebook, Message: err.Error()}
	}
	req.URL.RawQuery = form.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{Platform: providers.PlatformFacebook, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{
			Platform:   providers.PlatformFacebook,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var created struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &Error{Platform: providers.PlatformFacebook, Message: err.Error()}
	}
	if created.PostID != "" {
		return created.PostID, nil
	}
	if created.ID == "" {
		return "", &Error{Platform: providers.PlatformFacebook, Message: "response missing post id"}
	}
	return created.ID, nil
}

// firstPage pulls the first manageable page and its token out of the
// metadata captured at connect time.
func firstPage(metadata map[string]any) (id, token string, err error) {
	pages, ok := metadata["pages"].([]any)
	if !ok || len(pages) == 0 {
		return "", "", fmt.Errorf("connection has no manageable pages")
	}
	page, ok := pages[0].(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("malformed page metadata")
	}
	id, _ = page["id"].(string)
	token, _ = page["access_token"].(string)
	if id == "" || token == "" {
		return "", "", fmt.Errorf("page metadata missing id or access token")
	}
	return id, token, nil
}
