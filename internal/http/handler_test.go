package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/providers"
	pubplatform "github.com/syedkazim110/social-oauth-service/internal/publish"
	"github.com/syedkazim110/social-oauth-service/internal/services/connection"
	"github.com/syedkazim110/social-oauth-service/internal/services/oauthflow"
	publishsvc "github.com/syedkazim110/social-oauth-service/internal/services/publish"
	"github.com/syedkazim110/social-oauth-service/internal/storage"
	"github.com/syedkazim110/social-oauth-service/pkg/cipher"
)

type memStateStore struct {
	states map[string]*models.OAuthState
}

func (s *memStateStore) SaveState(_ context.Context, state models.OAuthState) error {
	cp := state
	s.states[state.StateToken] = &cp
	return nil
}

func (s *memStateStore) BrandFromState(_ context.Context, token, platform string) (int64, error) {
	state, ok := s.states[token]
	if !ok || state.Platform != platform || state.Used || !state.ExpiresAt.After(time.Now()) {
		return 0, storage.ErrStateInvalid
	}
	return state.BrandID, nil
}

func (s *memStateStore) ConsumeState(_ context.Context, token, platform string, brandID int64) (*string, error) {
	state, ok := s.states[token]
	if !ok || state.Platform != platform || state.BrandID != brandID || state.Used || !state.ExpiresAt.After(time.Now()) {
		return nil, storage.ErrStateInvalid
	}
	state.Used = true
	return state.CodeVerifier, nil
}

type memConnStore struct {
	rows map[string]models.Connection
}

func connKey(brandID int64, platform string) string {
	return fmt.Sprintf("%d/%s", brandID, platform)
}

func (f *memConnStore) Upsert(_ context.Context, conn models.Connection) (models.Connection, error) {
	conn.IsActive = true
	f.rows[connKey(conn.BrandID, conn.Platform)] = conn
	return conn, nil
}

func (f *memConnStore) Connection(_ context.Context, brandID int64, platform string) (models.Connection, error) {
	conn, ok := f.rows[connKey(brandID, platform)]
	if !ok || !conn.IsActive {
		return models.Connection{}, storage.ErrConnectionNotFound
	}
	return conn, nil
}

func (f *memConnStore) Connections(_ context.Context, brandID int64) ([]models.Connection, error) {
	var out []models.Connection
	for _, conn := range f.rows {
		if conn.BrandID == brandID && conn.IsActive {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (f *memConnStore) UpdateTokens(_ context.Context, brandID int64, platform, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	conn := f.rows[connKey(brandID, platform)]
	conn.AccessToken = accessToken
	if refreshToken != nil {
		conn.RefreshToken = refreshToken
	}
	conn.ExpiresAt = expiresAt
	f.rows[connKey(brandID, platform)] = conn
	return nil
}

func (f *memConnStore) UpdateOAuth1(_ context.Context, brandID int64, platform, token, secret string) error {
	conn, ok := f.rows[connKey(brandID, platform)]
	if !ok {
		return storage.ErrConnectionNotFound
	}
	conn.OAuth1Token = &token
	conn.OAuth1Secret = &secret
	conn.OAuth1Enabled = true
	f.rows[connKey(brandID, platform)] = conn
	return nil
}

func (f *memConnStore) SetError(context.Context, int64, string, string) error { return nil }

func (f *memConnStore) Deactivate(_ context.Context, brandID int64, platform string) error {
	conn := f.rows[connKey(brandID, platform)]
	conn.IsActive = false
	f.rows[connKey(brandID, platform)] = conn
	return nil
}

type memMediaStore struct {
	items map[string]models.StagedMedia
}

func (m *memMediaStore) Stage(_ context.Context, data []byte) (models.StagedMedia, error) {
	media := models.StagedMedia{ID: fmt.Sprintf("m-%d", len(m.items)+1), Format: "jpg", Data: data}
	m.items[media.ID] = media
	return media, nil
}

func (m *memMediaStore) Media(_ context.Context, id string) (models.StagedMedia, error) {
	media, ok := m.items[id]
	if !ok {
		return models.StagedMedia{}, storage.ErrMediaNotFound
	}
	return media, nil
}

func (m *memMediaStore) Discard(_ context.Context, id string) error {
	delete(m.items, id)
	return nil
}

type stubProvider struct {
	name     string
	exchange models.Credential
}

func (p *stubProvider) Name() string           { return p.name }
func (p *stubProvider) RequiresProofKey() bool { return false }
func (p *stubProvider) AuthorizationURL(state, _ string) (string, error) {
	return "https://platform.example/authorize?state=" + state, nil
}
func (p *stubProvider) ExchangeCode(context.Context, string, string) (models.Credential, error) {
	return p.exchange, nil
}
func (p *stubProvider) Refresh(context.Context, string) (models.Credential, error) {
	return p.exchange, nil
}
func (p *stubProvider) Identity(context.Context, string) (models.Identity, error) {
	return models.Identity{UserID: "u-1", Username: "acme"}, nil
}
func (p *stubProvider) Revoke(context.Context, string) bool { return true }

type okPublisher struct{ calls int }

func (p *okPublisher) Platform() string { return "twitter" }
func (p *okPublisher) Publish(context.Context, models.Connection, pubplatform.Post) (models.PostResult, error) {
	p.calls++
	return models.PostResult{PostID: "post-1", Platform: "twitter", Status: "published"}, nil
}

type testEnv struct {
	engine    *gin.Engine
	states    *memStateStore
	conns     *memConnStore
	media     *memMediaStore
	publisher *okPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	c, err := cipher.New(key)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := &stubProvider{name: "twitter", exchange: models.Credential{AccessToken: "at-1"}}
	registry := providers.NewRegistry(provider)

	connStore := &memConnStore{rows: make(map[string]models.Connection)}
	manager := connection.New(log, connStore, c, registry, 10*time.Minute)

	states := &memStateStore{states: make(map[string]*models.OAuthState)}
	flow := oauthflow.New(log, states, manager, registry)

	media := &memMediaStore{items: make(map[string]models.StagedMedia)}
	publisher := &okPublisher{}
	svc := publishsvc.New(log, manager, media, "http://localhost:8001", 1, time.Millisecond, publisher)

	engine := gin.New()
	NewHandler(log, flow, manager, svc, media).Register(engine)

	return &testEnv{engine: engine, states: states, conns: connStore, media: media, publisher: publisher}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthorizeReturnsURL(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/oauth/twitter/authorize", gin.H{"brand_id": 7})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.AuthorizationURL, "https://platform.example/authorize?state=")
}

func TestAuthorizeUnknownPlatform(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/oauth/myspace/authorize", gin.H{"brand_id": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizeRequiresBrand(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/oauth/twitter/authorize", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func beginFlow(t *testing.T, env *testEnv) string {
	w := env.do(t, http.MethodPost, "/api/v1/oauth/twitter/authorize", gin.H{"brand_id": 7})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	u, err := url.Parse(resp.AuthorizationURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestCallbackRendersSuccessPage(t *testing.T) {
	env := newTestEnv(t)
	state := beginFlow(t, env)

	w := env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback?code=auth-code&state="+state+"&brand_id=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Account connected")
	assert.Contains(t, w.Body.String(), "acme")

	_, ok := env.conns.rows[connKey(7, "twitter")]
	assert.True(t, ok, "callback stores the connection")
}

func TestCallbackRejectsReusedState(t *testing.T) {
	env := newTestEnv(t)
	state := beginFlow(t, env)

	first := env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback?code=c&state="+state+"&brand_id=7", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback?code=c&state="+state+"&brand_id=7", nil)
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.Contains(t, second.Body.String(), "Connection failed")
}

func TestCallbackEscapesDeniedReason(t *testing.T) {
	env := newTestEnv(t)

	payload := url.QueryEscape(`<script>alert(1)</script>`)
	w := env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback?error=access_denied&error_description="+payload, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, w.Body.String(), "&lt;script&gt;")
}

func TestCallbackMissingParams(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing code or state")
}

func TestListConnectionsOmitsTokens(t *testing.T) {
	env := newTestEnv(t)
	state := beginFlow(t, env)
	env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback?code=c&state="+state+"&brand_id=7", nil)

	w := env.do(t, http.MethodGet, "/api/v1/connections/7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `"platform":"twitter"`)
	assert.Contains(t, body, `"platform_username":"acme"`)
	assert.NotContains(t, body, "access_token")
	assert.NotContains(t, body, "at-1")
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t)
	state := beginFlow(t, env)
	env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback?code=c&state="+state+"&brand_id=7", nil)

	w := env.do(t, http.MethodPost, "/api/v1/oauth/twitter/disconnect", gin.H{"brand_id": 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.conns.rows[connKey(7, "twitter")].IsActive)
}

func TestPublishEndpoint(t *testing.T) {
	env := newTestEnv(t)
	state := beginFlow(t, env)
	env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback?code=c&state="+state+"&brand_id=7", nil)

	w := env.do(t, http.MethodPost, "/api/v1/publish", gin.H{
		"brand_id": 7,
		"platform": "twitter",
		"caption":  "hello",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.publisher.calls)

	var result models.PostResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "post-1", result.PostID)
}

func TestPublishWithoutConnection(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/publish", gin.H{
		"brand_id": 7,
		"platform": "twitter",
		"caption":  "hello",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPublishRejectsBothMediaSources(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/publish", gin.H{
		"brand_id":     7,
		"platform":     "twitter",
		"media_id":     "m-1",
		"image_base64": "aGVsbG8=",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "mutually exclusive")
}

func TestAttachSigningCredential(t *testing.T) {
	env := newTestEnv(t)
	state := beginFlow(t, env)
	env.do(t, http.MethodGet, "/api/v1/oauth/twitter/callback?code=c&state="+state+"&brand_id=7", nil)

	w := env.do(t, http.MethodPost, "/api/v1/oauth/twitter/signing-credential", gin.H{
		"brand_id": 7,
		"token":    "o1-token",
		"secret":   "o1-secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	conn := env.conns.rows[connKey(7, "twitter")]
	assert.True(t, conn.OAuth1Enabled)
	require.NotNil(t, conn.OAuth1Token)
	assert.NotEqual(t, "o1-token", *conn.OAuth1Token, "stored encrypted")
}

func TestServeStagedMedia(t *testing.T) {
	env := newTestEnv(t)
	env.media.items["m-1"] = models.StagedMedia{ID: "m-1", Format: "jpg", Data: []byte("image-bytes")}

	w := env.do(t, http.MethodGet, "/media/m-1.jpg", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpg", w.Header().Get("Content-Type"))
	assert.Equal(t, "image-bytes", w.Body.String())
}

func TestServeMissingMedia(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/media/unknown.jpg", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
