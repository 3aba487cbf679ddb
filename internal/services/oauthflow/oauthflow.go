// Package oauthflow drives the authorization handshake end to end:
// issuing the anti-CSRF state, building the redirect URL, and turning
// the platform callback into a stored connection.
package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/providers"
	"github.com/syedkazim110/social-oauth-service/internal/services/connection"
	"github.com/syedkazim110/social-oauth-service/internal/storage"
	"github.com/syedkazim110/social-oauth-service/utils"
)

// stateTTL bounds how long a callback may arrive after the redirect was
// issued.
const stateTTL = 10 * time.Minute

var ErrStateInvalid = errors.New("state token is invalid, expired, or already used")

type StateStore interface {
	SaveState(ctx context.Context, state models.OAuthState) error
	BrandFromState(ctx context.Context, stateToken, platform string) (int64, error)
	ConsumeState(ctx context.Context, stateToken, platform string, brandID int64) (*string, error)
}

type Service struct {
	log         *slog.Logger
	states      StateStore
	connections *connection.Manager
	registry    *providers.Registry
	now         func() time.Time
}

func New(
	log *slog.Logger,
	states StateStore,
	connections *connection.Manager,
	registry *providers.Registry,
) *Service {
	return &Service{
		log:         log,
		states:      states,
		connections: connections,
		registry:    registry,
		now:         time.Now,
	}
}

// Begin issues a single-use state token, generates the proof-key pair
// when the platform requires one, persists the record, and returns the
// authorization URL to redirect the user to.
func (s *Service) Begin(ctx context.Context, brandID int64, platform string) (string, error) {
	const op = "oauthflow.Service.Begin"
	log := s.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", brandID),
		logger.StringAttr("platform", platform),
	)

	provider, err := s.registry.Provider(platform)
	if err != nil {
		return "", err
	}

	stateToken, err := utils.RandomToken(32)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	state := models.OAuthState{
		StateToken: stateToken,
		Platform:   platform,
		BrandID:    brandID,
		ExpiresAt:  s.now().Add(stateTTL),
	}

	var challenge string
	if provider.RequiresProofKey() {
		verifier, err := utils.RandomToken(64)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		challenge = utils.ProofKeyChallenge(verifier)
		state.CodeVerifier = &verifier
		state.CodeChallenge = &challenge
	}

	if err := s.states.SaveState(ctx, state); err != nil {
		log.Error("failed to save state", logger.ErrAttr(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	url, err := provider.AuthorizationURL(stateToken, challenge)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("authorization started")
	return url, nil
}

// Complete finishes the handshake: verifies and consumes the state,
// exchanges the code, fetches the account identity, and stores the
// connection. brandID may be nil for platforms whose callback does not
// carry it; it is then resolved from the state record.
func (s *Service) Complete(ctx context.Context, platform, code, stateToken string, brandID *int64) (models.Connection, error) {
	const op = "oauthflow.Service.Complete"
	log := s.log.With(
		logger.StringAttr("op", op),
		logger.StringAttr("platform", platform),
	)

	provider, err := s.registry.Provider(platform)
	if err != nil {
		return models.Connection{}, err
	}

	var brand int64
	if brandID != nil {
		brand = *brandID
	} else {
		brand, err = s.states.BrandFromState(ctx, stateToken, platform)
		if err != nil {
			if errors.Is(err, storage.ErrStateInvalid) {
				return models.Connection{}, ErrStateInvalid
			}
			return models.Connection{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	log = log.With(slog.Int64("brand_id", brand))

	verifier, err := s.states.ConsumeState(ctx, stateToken, platform, brand)
	if err != nil {
		if errors.Is(err, storage.ErrStateInvalid) {
			log.Warn("state verification failed", logger.StringAttr("state", utils.MaskToken(stateToken)))
			return models.Connection{}, ErrStateInvalid
		}
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}

	var proofKey string
	if verifier != nil {
		proofKey = *verifier
	}

	cred, err := provider.ExchangeCode(ctx, code, proofKey)
	if err != nil {
		log.Error("code exchange failed", logger.ErrAttr(err))
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}

	identity, err := provider.Identity(ctx, cred.AccessToken)
	if err != nil {
		log.Error("identity fetch failed", logger.ErrAttr(err))
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := s.connections.Save(ctx, brand, platform, cred, identity, nil)
	if err != nil {
		return models.Connection{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("authorization completed", logger.StringAttr("platform_username", identity.Username))
	return conn, nil
}
