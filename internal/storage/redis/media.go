package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/google/uuid"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/storage"
	"github.com/syedkazim110/social-oauth-service/pkg/clients/redis"
	"github.com/syedkazim110/social-oauth-service/utils"
)

// mediaTTL bounds how long a staged image waits for publication.
const mediaTTL = time.Hour

type Storage struct {
	client redis.RedisClient
	log    *slog.Logger
}

func NewStorage(logger *slog.Logger, client redis.RedisClient) *Storage {
	return &Storage{client: client, log: logger}
}

func genMediaKey(id, format string) string {
	return fmt.Sprintf("staged_media:%s:%s", id, format)
}

// Stage stores raw image bytes until a publisher needs them reachable by
// URL. The format is sniffed from magic bytes; anything but jpg/png/gif
// is rejected.
func (s *Storage) Stage(ctx context.Context, data []byte) (models.StagedMedia, error) {
	const op = "redis.Storage.Stage"
	log := s.log.With(
		logger.StringAttr("op", op),
	)

	format, err := utils.DetectImageFormat(data)
	if err != nil {
		log.Warn("rejected staged media", logger.ErrAttr(err))
		return models.StagedMedia{}, fmt.Errorf("%s: %w", op, err)
	}

	media := models.StagedMedia{
		ID:     uuid.New().String(),
		Format: format,
		Data:   data,
	}

	if err := s.client.Set(ctx, genMediaKey(media.ID, media.Format), data, mediaTTL); err != nil {
		log.Error("failed to stage media", logger.ErrAttr(err))
		return models.StagedMedia{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("staged media", logger.StringAttr("media_id", media.ID), slog.Int("bytes", len(data)))
	return media, nil
}

// Media fetches staged bytes by id. Expired entries are simply absent.
func (s *Storage) Media(ctx context.Context, id string) (models.StagedMedia, error) {
	const op = "redis.Storage.Media"
	log := s.log.With(
		logger.StringAttr("op", op),
		logger.StringAttr("media_id", id),
	)

	keys, err := s.client.Keys(ctx, genMediaKey(id, "*"))
	if err != nil {
		log.Error("failed to search media key", logger.ErrAttr(err))
		return models.StagedMedia{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(keys) == 0 {
		return models.StagedMedia{}, storage.ErrMediaNotFound
	}
	if len(keys) > 1 {
		log.Warn("multiple staged entries found, using the first one")
	}

	key := keys[0]
	data, err := s.client.Get(ctx, key)
	if err != nil {
		log.Error("failed to get staged media", logger.ErrAttr(err))
		return models.StagedMedia{}, fmt.Errorf("%s: %w", op, err)
	}

	parts := strings.Split(key, ":")
	return models.StagedMedia{
		ID:     id,
		Format: parts[len(parts)-1],
		Data:   []byte(data),
	}, nil
}

// Discard removes staged media once published.
func (s *Storage) Discard(ctx context.Context, id string) error {
	const op = "redis.Storage.Discard"
	log := s.log.With(
		logger.StringAttr("op", op),
		logger.StringAttr("media_id", id),
	)

	keys, err := s.client.Keys(ctx, genMediaKey(id, "*"))
	if err != nil {
		log.Error("failed to search media key", logger.ErrAttr(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		log.Error("failed to delete staged media", logger.ErrAttr(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
