package postgre

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/storage"
)

const connectionColumns = `id, brand_id, platform, access_token, refresh_token, expires_at,
	platform_user_id, platform_username, account_metadata,
	oauth1_access_token, oauth1_access_token_secret, oauth1_enabled,
	is_active, connection_error, created_at, updated_at`

// Upsert writes a connection keyed on (brand_id, platform). A write is a
// full credential replacement: it reactivates the row and clears any
// prior error state.
func (s *Storage) Upsert(ctx context.Context, conn models.Connection) (models.Connection, error) {
	const op = "storage.postgre.Upsert"

	metadata, err := json.Marshal(conn.AccountMetadata)
	if err != nil {
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}

	q := `INSERT INTO social_connections (
		brand_id, platform, access_token, refresh_token, expires_at,
		platform_user_id, platform_username, account_metadata,
		oauth1_access_token, oauth1_access_token_secret, oauth1_enabled)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (brand_id, platform) DO UPDATE SET
		access_token = EXCLUDED.access_token,
		refresh_token = EXCLUDED.refresh_token,
		expires_at = EXCLUDED.expires_at,
		platform_user_id = EXCLUDED.platform_user_id,
		platform_username = EXCLUDED.platform_username,
		account_metadata = EXCLUDED.account_metadata,
		oauth1_access_token = EXCLUDED.oauth1_access_token,
		oauth1_access_token_secret = EXCLUDED.oauth1_access_token_secret,
		oauth1_enabled = EXCLUDED.oauth1_enabled,
		is_active = true,
		connection_error = NULL,
		updated_at = now()
	RETURNING ` + connectionColumns

	s.log.Debug("SQL upsert connection query:", slog.String("query", formatQuery(q)))
	row := s.client.QueryRow(ctx, q,
		conn.BrandID, conn.Platform, conn.AccessToken, conn.RefreshToken, conn.ExpiresAt,
		conn.PlatformUserID, conn.PlatformUsername, metadata,
		conn.OAuth1Token, conn.OAuth1Secret, conn.OAuth1Enabled,
	)
	saved, err := scanConnection(row)
	if err != nil {
		return models.Connection{}, pgError(op, err)
	}
	return saved, nil
}

// Connection returns the active row for a (brand, platform) pair. Token
// fields hold ciphertext; decryption is the caller's concern.
func (s *Storage) Connection(ctx context.Context, brandID int64, platform string) (models.Connection, error) {
	const op = "storage.postgre.Connection"

	q := `SELECT ` + connectionColumns + ` FROM social_connections
	WHERE brand_id = $1 AND platform = $2 AND is_active = true`

	s.log.Debug("SQL get connection query:", slog.String("query", formatQuery(q)))
	conn, err := scanConnection(s.client.QueryRow(ctx, q, brandID, platform))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Connection{}, storage.ErrConnectionNotFound
		}
		return models.Connection{}, pgError(op, err)
	}
	return conn, nil
}

// Connections lists all active rows for a brand, newest first.
func (s *Storage) Connections(ctx context.Context, brandID int64) ([]models.Connection, error) {
	const op = "storage.postgre.Connections"

	q := `SELECT ` + connectionColumns + ` FROM social_connections
	WHERE brand_id = $1 AND is_active = true ORDER BY created_at DESC`

	s.log.Debug("SQL list connections query:", slog.String("query", formatQuery(q)))
	rows, err := s.client.Query(ctx, q, brandID)
	if err != nil {
		return nil, pgError(op, err)
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, pgError(op, err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(op, err)
	}
	return conns, nil
}

// UpdateTokens replaces the credential fields after a refresh. A nil
// refresh token keeps the stored one; platforms that do not rotate keep
// the old value.
func (s *Storage) UpdateTokens(ctx context.Context, brandID int64, platform, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	const op = "storage.postgre.UpdateTokens"

	q := `UPDATE social_connections SET
		access_token = $3,
		refresh_token = COALESCE($4, refresh_token),
		expires_at = $5,
		updated_at = now()
	WHERE brand_id = $1 AND platform = $2`

	s.log.Debug("SQL update tokens query:", slog.String("query", formatQuery(q)))
	if _, err := s.client.Exec(ctx, q, brandID, platform, accessToken, refreshToken, expiresAt); err != nil {
		return pgError(op, err)
	}
	return nil
}

// UpdateOAuth1 attaches or replaces the secondary signing credential pair.
func (s *Storage) UpdateOAuth1(ctx context.Context, brandID int64, platform, token, secret string) error {
	const op = "storage.postgre.UpdateOAuth1"

	q := `UPDATE social_connections SET
		oauth1_access_token = $3,
		oauth1_access_token_secret = $4,
		oauth1_enabled = true,
		updated_at = now()
	WHERE brand_id = $1 AND platform = $2`

	s.log.Debug("SQL update oauth1 query:", slog.String("query", formatQuery(q)))
	if _, err := s.client.Exec(ctx, q, brandID, platform, token, secret); err != nil {
		return pgError(op, err)
	}
	return nil
}

// SetError records a failure message on the row. The active flag is left
// alone so operators can tell "needs re-auth" from "never connected".
func (s *Storage) SetError(ctx context.Context, brandID int64, platform, message string) error {
	const op = "storage.postgre.SetError"

	q := `UPDATE social_connections SET connection_error = $3, updated_at = now()
	WHERE brand_id = $1 AND platform = $2`

	s.log.Debug("SQL set error query:", slog.String("query", formatQuery(q)))
	if _, err := s.client.Exec(ctx, q, brandID, platform, message); err != nil {
		return pgError(op, err)
	}
	return nil
}

// Deactivate soft-deletes the connection.
func (s *Storage) Deactivate(ctx context.Context, brandID int64, platform string) error {
	const op = "storage.postgre.Deactivate"

	q := `UPDATE social_connections SET is_active = false, updated_at = now()
	WHERE brand_id = $1 AND platform = $2`

	s.log.Debug("SQL deactivate query:", slog.String("query", formatQuery(q)))
	if _, err := s.client.Exec(ctx, q, brandID, platform); err != nil {
		return pgError(op, err)
	}
	return nil
}

func scanConnection(row pgx.Row) (models.Connection, error) {
	var conn models.Connection
	var metadata []byte

	err := row.Scan(
		&conn.ID, &conn.BrandID, &conn.Platform, &conn.AccessToken, &conn.RefreshToken, &conn.ExpiresAt,
		&conn.PlatformUserID, &conn.PlatformUsername, &metadata,
		&conn.OAuth1Token, &conn.OAuth1Secret, &conn.OAuth1Enabled,
		&conn.IsActive, &conn.ConnectionError, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return models.Connection{}, err
	}

	conn.AccountMetadata = map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conn.AccountMetadata); err != nil {
			return models.Connection{}, fmt.Errorf("failed to parse account metadata: %w", err)
		}
	}
	return conn, nil
}
