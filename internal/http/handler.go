// Package http exposes the REST surface: starting and completing the
// authorization flow, listing and disconnecting connections, staging
// media, and publishing posts.
package http

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/FurmanovVitaliy/logger"
	"github.com/gin-gonic/gin"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/providers"
	"github.com/syedkazim110/social-oauth-service/internal/services/connection"
	"github.com/syedkazim110/social-oauth-service/internal/services/oauthflow"
	publishsvc "github.com/syedkazim110/social-oauth-service/internal/services/publish"
	"github.com/syedkazim110/social-oauth-service/internal/storage"
)

// maxImageBytes caps direct uploads; platform image limits sit well
// below this anyway.
const maxImageBytes = 20 << 20

type Handler struct {
	log         *slog.Logger
	flow        *oauthflow.Service
	connections *connection.Manager
	publisher   *publishsvc.Service
	media       publishsvc.MediaStore
}

func NewHandler(
	log *slog.Logger,
	flow *oauthflow.Service,
	connections *connection.Manager,
	publisher *publishsvc.Service,
	media publishsvc.MediaStore,
) *Handler {
	return &Handler{
		log:         log,
		flow:        flow,
		connections: connections,
		publisher:   publisher,
		media:       media,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/media/:filename", h.servedMedia)

	api := r.Group("/api/v1")
	{
		oauth := api.Group("/oauth/:platform")
		{
			oauth.POST("/authorize", h.authorize)
			oauth.GET("/callback", h.callback)
			oauth.POST("/disconnect", h.disconnect)
			oauth.POST("/signing-credential", h.attachSigningCredential)
		}
		api.GET("/connections/:brand_id", h.listConnections)
		api.POST("/media", h.stageMedia)
		api.POST("/publish", h.publish)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type authorizeRequest struct {
	BrandID int64 `json:"brand_id" binding:"required"`
}

func (h *Handler) authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	url, err := h.flow.Begin(c.Request.Context(), req.BrandID, c.Param("platform"))
	if err != nil {
		h.flowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"authorization_url": url})
}

// callback is hit by the platform redirect inside the user's popup, so
// it answers with an HTML page instead of JSON.
func (h *Handler) callback(c *gin.Context) {
	platform := c.Param("platform")

	if denied := c.Query("error"); denied != "" {
		h.log.Warn("authorization denied",
			logger.StringAttr("platform", platform),
			logger.StringAttr("reason", denied),
		)
		h.renderFailure(c, platform, c.DefaultQuery("error_description", denied))
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		h.renderFailure(c, platform, "callback missing code or state")
		return
	}

	var brandID *int64
	if raw := c.Query("brand_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.renderFailure(c, platform, "malformed brand_id")
			return
		}
		brandID = &id
	}

	conn, err := h.flow.Complete(c.Request.Context(), platform, code, state, brandID)
	if err != nil {
		if errors.Is(err, oauthflow.ErrStateInvalid) {
			h.renderFailure(c, platform, "authorization session is invalid or expired, please try again")
			return
		}
		h.log.Error("authorization failed", logger.ErrAttr(err))
		h.renderFailure(c, platform, "authorization failed")
		return
	}

	h.renderSuccess(c, platform, conn.PlatformUsername)
}

type disconnectRequest struct {
	BrandID int64 `json:"brand_id" binding:"required"`
}

func (h *Handler) disconnect(c *gin.Context) {
	var req disconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.connections.Disconnect(c.Request.Context(), req.BrandID, c.Param("platform")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disconnect"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

type signingCredentialRequest struct {
	BrandID int64  `json:"brand_id" binding:"required"`
	Token   string `json:"token" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

// attachSigningCredential stores the secondary OAuth1 pair needed for
// chunked media upload.
func (h *Handler) attachSigningCredential(c *gin.Context) {
	var req signingCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.connections.SetSigningCredential(c.Request.Context(), req.BrandID, c.Param("platform"), models.OAuth1Credential{
		Token:  req.Token,
		Secret: req.Secret,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConnectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active connection for this platform"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store signing credential"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attached": true})
}

func (h *Handler) listConnections(c *gin.Context) {
	brandID, err := strconv.ParseInt(c.Param("brand_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed brand_id"})
		return
	}

	conns, err := h.connections.List(c.Request.Context(), brandID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list connections"})
		return
	}

	out := make([]gin.H, 0, len(conns))
	for _, conn := range conns {
		out = append(out, gin.H{
			"platform":          conn.Platform,
			"platform_user_id":  conn.PlatformUserID,
			"platform_username": conn.PlatformUsername,
			"expires_at":        conn.ExpiresAt,
			"oauth1_enabled":    conn.OAuth1Enabled,
			"connection_error":  conn.ConnectionError,
			"connected_at":      conn.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"connections": out})
}

// stageMedia accepts a multipart file upload and parks the bytes until a
// publish call references them.
func (h *Handler) stageMedia(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	media, url, err := h.publisher.StageMedia(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unsupported or unreadable image"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"media_id": media.ID,
		"format":   media.Format,
		"url":      url,
	})
}

// servedMedia makes staged images reachable for platforms that fetch by
// URL. The filename is "<id>.<format>".
func (h *Handler) servedMedia(c *gin.Context) {
	id, format, ok := strings.Cut(c.Param("filename"), ".")
	if !ok || id == "" {
		c.Status(http.StatusNotFound)
		return
	}

	media, err := h.media.Media(c.Request.Context(), id)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.Data(http.StatusOK, "image/"+format, media.Data)
}

type publishRequest struct {
	BrandID     int64  `json:"brand_id" binding:"required"`
	Platform    string `json:"platform" binding:"required"`
	Caption     string `json:"caption"`
	MediaID     string `json:"media_id"`
	ImageBase64 string `json:"image_base64"`
}

func (h *Handler) publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MediaID != "" && req.ImageBase64 != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "media_id and image_base64 are mutually exclusive"})
		return
	}

	var imageData []byte
	if req.ImageBase64 != "" {
		var err error
		imageData, err = base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 is not valid base64"})
			return
		}
	}

	result, err := h.publisher.Publish(c.Request.Context(), publishsvc.Request{
		BrandID:   req.BrandID,
		Platform:  req.Platform,
		Caption:   req.Caption,
		MediaID:   req.MediaID,
		ImageData: imageData,
	})
	if err != nil {
		h.publishError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) publishError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, publishsvc.ErrPublisherNotSupported),
		errors.Is(err, providers.ErrPlatformNotSupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform not supported"})
	case errors.Is(err, publishsvc.ErrMediaNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "staged media not found or expired"})
	case errors.Is(err, connection.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": "no active connection for this platform"})
	default:
		h.log.Error("publish request failed", logger.ErrAttr(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "publish failed"})
	}
}

func (h *Handler) flowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, providers.ErrPlatformNotSupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform not supported"})
	default:
		h.log.Error("authorization request failed", logger.ErrAttr(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start authorization"})
	}
}
