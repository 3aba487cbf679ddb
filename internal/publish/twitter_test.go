package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTwitter(t *testing.T, handler http.HandlerFunc) *Twitter {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	tw := NewTwitter(discardLogger(), "ck", "cs")
	tw.client = ts.Client()
	tw.createURL = ts.URL
	return tw
}

func TestTwitterPublishTextOnly(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any

	tw := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data": {"id": "1446159163969523715"}}`)
	})

	conn := models.Connection{
		BrandID:          7,
		AccessToken:      "bearer-token",
		PlatformUsername: "acme",
	}
	result, err := tw.Publish(context.Background(), conn, Post{Caption: "hello world"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer bearer-token", gotAuth)
	assert.Equal(t, "hello world", gotPayload["text"])
	assert.NotContains(t, gotPayload, "media")

	assert.Equal(t, "1446159163969523715", result.PostID)
	assert.Equal(t, "https://twitter.com/acme/status/1446159163969523715", result.URL)
	assert.Equal(t, "published", result.Status)
}

func TestTwitterPublishTruncatesCaption(t *testing.T) {
	var gotPayload map[string]any
	tw := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, `{"data": {"id": "1"}}`)
	})

	longCaption := strings.Repeat("a", 300)
	result, err := tw.Publish(context.Background(), models.Connection{AccessToken: "t"}, Post{Caption: longCaption})
	require.NoError(t, err)

	text := gotPayload["text"].(string)
	assert.Len(t, []rune(text), maxTweetLength)
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.Equal(t, text, result.Caption)
}

func TestTruncateCaption(t *testing.T) {
	assert.Equal(t, "short", truncateCaption("short", 280))

	exact := strings.Repeat("x", 280)
	assert.Equal(t, exact, truncateCaption(exact, 280))

	truncated := truncateCaption(strings.Repeat("x", 281), 280)
	assert.Len(t, []rune(truncated), 280)

	// Multibyte captions are cut on runes, never mid-character.
	unicode := truncateCaption(strings.Repeat("ü", 300), 280)
	assert.Len(t, []rune(unicode), 280)
}

func TestTwitterPublishMediaNeedsSigningCredential(t *testing.T) {
	tw := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("create-post endpoint must not be reached")
	})

	conn := models.Connection{AccessToken: "bearer"}
	_, err := tw.Publish(context.Background(), conn, Post{Caption: "pic", ImageData: []byte("img")})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "signing credential")
}

func TestTwitterPublishWithMedia(t *testing.T) {
	var gotPayload map[string]any
	tw := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, `{"data": {"id": "2"}}`)
	})

	// Short-circuit the upload session; it has its own tests.
	uploadServer := &uploadServer{t: t, finalizeResponse: `{"media_id_string": "9001"}`}
	uploader, _ := newTestUploader(t, uploadServer)
	tw.uploader = func(models.Connection) *chunkUploader { return uploader }

	token, secret := "o1-token", "o1-secret"
	conn := models.Connection{
		AccessToken:  "bearer",
		OAuth1Token:  &token,
		OAuth1Secret: &secret,
	}
	_, err := tw.Publish(context.Background(), conn, Post{Caption: "pic", ImageData: []byte("img")})
	require.NoError(t, err)

	media := gotPayload["media"].(map[string]any)
	assert.Equal(t, []any{"9001"}, media["media_ids"])
}

func TestTwitterPublishErrorIsRetryableShape(t *testing.T) {
	tw := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"detail": "over capacity"}`)
	})

	_, err := tw.Publish(context.Background(), models.Connection{AccessToken: "t"}, Post{Caption: "x"})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.Contains(t, perr.Message, "over capacity")
}
