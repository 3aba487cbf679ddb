// Package connection manages the durable per-brand-per-platform
// credential records: encrypting secrets on the way in, decrypting on
// the way out, and deciding when a credential is due for renewal.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/providers"
	"github.com/syedkazim110/social-oauth-service/internal/storage"
	"github.com/syedkazim110/social-oauth-service/pkg/cipher"
)

var (
	ErrNotConnected = errors.New("no active connection for this platform")
	// ErrNoTokenForRefresh means the stored row has neither a refresh
	// token nor an access token to feed the provider's renewal call.
	ErrNoTokenForRefresh = errors.New("no token available for refresh")
)

type ConnectionStore interface {
	Upsert(ctx context.Context, conn models.Connection) (models.Connection, error)
	Connection(ctx context.Context, brandID int64, platform string) (models.Connection, error)
	Connections(ctx context.Context, brandID int64) ([]models.Connection, error)
	UpdateTokens(ctx context.Context, brandID int64, platform, accessToken string, refreshToken *string, expiresAt *time.Time) error
	UpdateOAuth1(ctx context.Context, brandID int64, platform, token, secret string) error
	SetError(ctx context.Context, brandID int64, platform, message string) error
	Deactivate(ctx context.Context, brandID int64, platform string) error
}

type Manager struct {
	log              *slog.Logger
	store            ConnectionStore
	cipher           *cipher.Cipher
	registry         *providers.Registry
	refreshThreshold time.Duration
	now              func() time.Time
}

func New(
	log *slog.Logger,
	store ConnectionStore,
	cipher *cipher.Cipher,
	registry *providers.Registry,
	refreshThreshold time.Duration,
) *Manager {
	return &Manager{
		log:              log,
		store:            store,
		cipher:           cipher,
		registry:         registry,
		refreshThreshold: refreshThreshold,
		now:              time.Now,
	}
}

// Save upserts the connection for (brand, platform), encrypting every
// secret field first. A successful save clears prior error state.
func (m *Manager) Save(ctx context.Context, brandID int64, platform string, cred models.Credential, identity models.Identity, oauth1 *models.OAuth1Credential) (models.Connection, error) {
	const op = "connection.Manager.Save"
	log := m.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", brandID),
		logger.StringAttr("platform", platform),
	)

	encAccess, err := m.cipher.Encrypt(cred.AccessToken)
	if err != nil {
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}

	conn := models.Connection{
		BrandID:          brandID,
		Platform:         platform,
		AccessToken:      encAccess,
		ExpiresAt:        cred.ExpiresAt,
		PlatformUserID:   identity.UserID,
		PlatformUsername: identity.Username,
		AccountMetadata:  identity.Metadata,
	}

	if cred.RefreshToken != "" {
		encRefresh, err := m.cipher.Encrypt(cred.RefreshToken)
		if err != nil {
			return models.Connection{}, fmt.Errorf("%s: %w", op, err)
		}
		conn.RefreshToken = &encRefresh
	}

	if oauth1 != nil {
		encTok, err := m.cipher.Encrypt(oauth1.Token)
		if err != nil {
			return models.Connection{}, fmt.Errorf("%s: %w", op, err)
		}
		encSec, err := m.cipher.Encrypt(oauth1.Secret)
		if err != nil {
			return models.Connection{}, fmt.Errorf("%s: %w", op, err)
		}
		conn.OAuth1Token = &encTok
		conn.OAuth1Secret = &encSec
		conn.OAuth1Enabled = true
	}

	saved, err := m.store.Upsert(ctx, conn)
	if err != nil {
		log.Error("failed to save connection", logger.ErrAttr(err))
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("connection saved", logger.StringAttr("platform_username", identity.Username))
	return saved, nil
}

// Get returns the active connection, decrypted when asked for. A
// decryption failure means the stored credential is unusable and the
// account must be re-authorized; it is never treated as transient.
func (m *Manager) Get(ctx context.Context, brandID int64, platform string, decrypt bool) (models.Connection, error) {
	const op = "connection.Manager.Get"
	log := m.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", brandID),
		logger.StringAttr("platform", platform),
	)

	conn, err := m.store.Connection(ctx, brandID, platform)
	if err != nil {
		if errors.Is(err, storage.ErrConnectionNotFound) {
			return models.Connection{}, ErrNotConnected
		}
		log.Error("failed to get connection", logger.ErrAttr(err))
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}

	if !decrypt {
		return conn, nil
	}

	if conn.AccessToken, err = m.cipher.Decrypt(conn.AccessToken); err != nil {
		log.Error("stored access token is unreadable", logger.ErrAttr(err))
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}
	if conn.RefreshToken != nil {
		plain, err := m.cipher.Decrypt(*conn.RefreshToken)
		if err != nil {
			log.Error("stored refresh token is unreadable", logger.ErrAttr(err))
			return models.Connection{}, fmt.Errorf("%s: %w", op, err)
		}
		conn.RefreshToken = &plain
	}
	if conn.OAuth1Token != nil {
		plain, err := m.cipher.Decrypt(*conn.OAuth1Token)
		if err != nil {
			log.Error("stored signing token is unreadable", logger.ErrAttr(err))
			return models.Connection{}, fmt.Errorf("%s: %w", op, err)
		}
		conn.OAuth1Token = &plain
	}
	if conn.OAuth1Secret != nil {
		plain, err := m.cipher.Decrypt(*conn.OAuth1Secret)
		if err != nil {
			log.Error("stored signing secret is unreadable", logger.ErrAttr(err))
			return models.Connection{}, fmt.Errorf("%s: %w", op, err)
		}
		conn.OAuth1Secret = &plain
	}

	return conn, nil
}

// List returns all active connections for a brand, tokens still
// encrypted; it exists for listing surfaces that never need secrets.
func (m *Manager) List(ctx context.Context, brandID int64) ([]models.Connection, error) {
	const op = "connection.Manager.List"

	conns, err := m.store.Connections(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return conns, nil
}

// NeedsRefresh reports whether the credential expires within the
// threshold. The boundary is inclusive; a connection without an expiry
// never needs refresh.
func (m *Manager) NeedsRefresh(conn models.Connection) bool {
	if conn.ExpiresAt == nil {
		return false
	}
	return !m.now().Add(m.refreshThreshold).Before(*conn.ExpiresAt)
}

// RefreshIfNeeded renews the credential when it is close to expiry.
// Refresh-token platforms get the stored refresh token; exchange-style
// platforms get the current access token in the same slot. The returned
// bool says whether a renewal actually ran. A provider failure marks the
// connection and propagates: callers must fail loudly rather than
// publish with a stale token.
func (m *Manager) RefreshIfNeeded(ctx context.Context, brandID int64, platform string) (bool, error) {
	const op = "connection.Manager.RefreshIfNeeded"
	log := m.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", brandID),
		logger.StringAttr("platform", platform),
	)

	conn, err := m.Get(ctx, brandID, platform, true)
	if err != nil {
		return false, err
	}
	if !m.NeedsRefresh(conn) {
		return false, nil
	}

	provider, err := m.registry.Provider(platform)
	if err != nil {
		return false, err
	}

	token := conn.AccessToken
	if conn.RefreshToken != nil && *conn.RefreshToken != "" {
		token = *conn.RefreshToken
	}
	if token == "" {
		m.MarkError(ctx, brandID, platform, ErrNoTokenForRefresh.Error())
		return false, ErrNoTokenForRefresh
	}

	log.Info("refreshing credential")
	cred, err := provider.Refresh(ctx, token)
	if err != nil {
		log.Error("refresh failed", logger.ErrAttr(err))
		m.MarkError(ctx, brandID, platform, err.Error())
		return false, fmt.Errorf("%s: %w", op, err)
	}

	encAccess, err := m.cipher.Encrypt(cred.AccessToken)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	// Nil keeps the stored refresh token when the platform did not
	// rotate it.
	var encRefresh *string
	if cred.RefreshToken != "" {
		enc, err := m.cipher.Encrypt(cred.RefreshToken)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		encRefresh = &enc
	}

	if err := m.store.UpdateTokens(ctx, brandID, platform, encAccess, encRefresh, cred.ExpiresAt); err != nil {
		log.Error("failed to persist refreshed credential", logger.ErrAttr(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("credential refreshed")
	return true, nil
}

// SetSigningCredential attaches the secondary OAuth1 pair some platforms
// require for media upload.
func (m *Manager) SetSigningCredential(ctx context.Context, brandID int64, platform string, cred models.OAuth1Credential) error {
	const op = "connection.Manager.SetSigningCredential"
	log := m.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", brandID),
		logger.StringAttr("platform", platform),
	)

	encTok, err := m.cipher.Encrypt(cred.Token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	encSec, err := m.cipher.Encrypt(cred.Secret)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.store.UpdateOAuth1(ctx, brandID, platform, encTok, encSec); err != nil {
		log.Error("failed to store signing credential", logger.ErrAttr(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("signing credential attached")
	return nil
}

// MarkError records the failure on the row, leaving it active so the
// account shows as "connected but erroring" until re-authorized.
func (m *Manager) MarkError(ctx context.Context, brandID int64, platform, message string) {
	const op = "connection.Manager.MarkError"
	log := m.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", brandID),
		logger.StringAttr("platform", platform),
	)

	if err := m.store.SetError(ctx, brandID, platform, message); err != nil {
		log.Error("failed to mark connection error", logger.ErrAttr(err))
		return
	}
	log.Warn("connection marked with error", logger.StringAttr("message", message))
}

// Disconnect revokes the token best-effort, then deactivates the row
// regardless of the revoke outcome.
func (m *Manager) Disconnect(ctx context.Context, brandID int64, platform string) (bool, error) {
	const op = "connection.Manager.Disconnect"
	log := m.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", brandID),
		logger.StringAttr("platform", platform),
	)

	conn, err := m.Get(ctx, brandID, platform, true)
	if err == nil {
		if provider, perr := m.registry.Provider(platform); perr == nil {
			if !provider.Revoke(ctx, conn.AccessToken) {
				log.Warn("failed to revoke token on platform")
			}
		}
	} else if !errors.Is(err, ErrNotConnected) {
		log.Warn("could not load connection before disconnect", logger.ErrAttr(err))
	}

	if err := m.store.Deactivate(ctx, brandID, platform); err != nil {
		log.Error("failed to deactivate connection", logger.ErrAttr(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("disconnected")
	return true, nil
}
