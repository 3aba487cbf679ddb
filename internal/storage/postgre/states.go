package postgre

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/storage"
	"github.com/syedkazim110/social-oauth-service/pkg/clients/postgre"
)

type Storage struct {
	client postgre.PostgresClient
	log    *slog.Logger
}

func NewStorage(logger *slog.Logger, client postgre.PostgresClient) *Storage {
	return &Storage{client: client, log: logger}
}

func formatQuery(q string) string {
	return strings.ReplaceAll(strings.ReplaceAll(q, "\t", ""), "\n", " ")
}

func pgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: SQL Error: %s, Detail: %s, Where: %s, Code: %s, SQLState: %s", op, pgErr.Message, pgErr.Detail, pgErr.Where, pgErr.Code, pgErr.SQLState())
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SaveState persists a freshly issued anti-CSRF state record.
func (s *Storage) SaveState(ctx context.Context, state models.OAuthState) error {
	const op = "storage.postgre.SaveState"

	q := `INSERT INTO oauth_states (state_token, platform, brand_id, code_verifier, code_challenge, expires_at, used)
	VALUES ($1, $2, $3, $4, $5, $6, false)`

	s.log.Debug("SQL save state query:", slog.String("query", formatQuery(q)))
	if _, err := s.client.Exec(ctx, q, state.StateToken, state.Platform, state.BrandID, state.CodeVerifier, state.CodeChallenge, state.ExpiresAt); err != nil {
		return pgError(op, err)
	}
	return nil
}

// BrandFromState resolves the brand behind an unverified state token.
// Some platform callbacks arrive without the brand in the query string.
// Expiry and the used flag are still checked, but the token is not
// consumed here.
func (s *Storage) BrandFromState(ctx context.Context, stateToken, platform string) (int64, error) {
	const op = "storage.postgre.BrandFromState"
	var brandID int64

	q := `SELECT brand_id FROM oauth_states
	WHERE state_token = $1 AND platform = $2 AND used = false AND expires_at > now()`

	s.log.Debug("SQL brand from state query:", slog.String("query", formatQuery(q)))
	if err := s.client.QueryRow(ctx, q, stateToken, platform).Scan(&brandID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrStateInvalid
		}
		return 0, pgError(op, err)
	}
	return brandID, nil
}

// ConsumeState verifies a state token and marks it used in one atomic
// statement. Two callbacks racing on the same token get exactly one
// success; the check-and-set must never be split into read then write.
// Returns the stored proof-key verifier, nil when the platform uses none.
func (s *Storage) ConsumeState(ctx context.Context, stateToken, platform string, brandID int64) (*string, error) {
	const op = "storage.postgre.ConsumeState"
	var verifier *string

	q := `UPDATE oauth_states SET used = true
	WHERE state_token = $1 AND platform = $2 AND brand_id = $3 AND used = false AND expires_at > now()
	RETURNING code_verifier`

	s.log.Debug("SQL consume state query:", slog.String("query", formatQuery(q)))
	if err := s.client.QueryRow(ctx, q, stateToken, platform, brandID).Scan(&verifier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrStateInvalid
		}
		return nil, pgError(op, err)
	}
	return verifier, nil
}
