// Package publish orchestrates posting: credential renewal up front,
// media resolution, and a bounded retry loop around the platform call.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
	"github.com/syedkazim110/social-oauth-service/internal/publish"
	"github.com/syedkazim110/social-oauth-service/internal/services/connection"
	"github.com/syedkazim110/social-oauth-service/internal/storage"
	"github.com/syedkazim110/social-oauth-service/pkg/retry"
)

var (
	ErrPublisherNotSupported = errors.New("no publisher for this platform")
	ErrMediaNotFound         = errors.New("staged media not found or expired")
)

// MediaStore is the staged-image side chamber: bytes go in at request
// time and come out when a publisher needs them.
type MediaStore interface {
	Stage(ctx context.Context, data []byte) (models.StagedMedia, error)
	Media(ctx context.Context, id string) (models.StagedMedia, error)
	Discard(ctx context.Context, id string) error
}

type Service struct {
	log         *slog.Logger
	connections *connection.Manager
	media       MediaStore
	publishers  map[string]publish.Publisher
	baseURL     string
	maxRetries  int
	backoff     time.Duration
	sleep       func(time.Duration)
}

func New(
	log *slog.Logger,
	connections *connection.Manager,
	media MediaStore,
	baseURL string,
	maxRetries int,
	backoff time.Duration,
	publishers ...publish.Publisher,
) *Service {
	s := &Service{
		log:         log,
		connections: connections,
		media:       media,
		publishers:  make(map[string]publish.Publisher, len(publishers)),
		baseURL:     baseURL,
		maxRetries:  maxRetries,
		backoff:     backoff,
		sleep:       time.Sleep,
	}
	for _, p := range publishers {
		s.publishers[p.Platform()] = p
	}
	return s
}

// Request is one publish call. Exactly one of MediaID or ImageData may
// be set; both empty means a text-only post.
type Request struct {
	BrandID   int64
	Platform  string
	Caption   string
	MediaID   string
	ImageData []byte
}

// Publish renews the credential if needed, resolves staged media, and
// runs the platform call under the retry policy. Only post-creation
// failures are retried: renewal failures and upload failures surface
// immediately because repeating them cannot help.
func (s *Service) Publish(ctx context.Context, req Request) (models.PostResult, error) {
	const op = "publish.Service.Publish"
	log := s.log.With(
		logger.StringAttr("op", op),
		slog.Int64("brand_id", req.BrandID),
		logger.StringAttr("platform", req.Platform),
	)

	publisher, ok := s.publishers[req.Platform]
	if !ok {
		return models.PostResult{}, ErrPublisherNotSupported
	}

	if _, err := s.connections.RefreshIfNeeded(ctx, req.BrandID, req.Platform); err != nil {
		return models.PostResult{}, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := s.connections.Get(ctx, req.BrandID, req.Platform, true)
	if err != nil {
		return models.PostResult{}, err
	}

	post, mediaID, err := s.buildPost(ctx, req)
	if err != nil {
		return models.PostResult{}, err
	}

	var result models.PostResult
	err = retry.Do(ctx, func() error {
		var perr error
		result, perr = publisher.Publish(ctx, conn, post)
		return perr
	}, retry.Options{
		MaxRetries:     s.maxRetries,
		InitialBackoff: s.backoff,
		Retryable:      Retryable,
		Sleep:          s.sleep,
	})
	if err != nil {
		log.Error("publish failed", logger.ErrAttr(err))
		return models.PostResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if mediaID != "" {
		if derr := s.media.Discard(ctx, mediaID); derr != nil {
			log.Warn("failed to discard staged media", logger.ErrAttr(derr))
		}
	}

	log.Info("published", logger.StringAttr("post_id", result.PostID))
	return result, nil
}

// StageMedia stores image bytes and returns the entry plus the public
// URL platforms that fetch images themselves can use.
func (s *Service) StageMedia(ctx context.Context, data []byte) (models.StagedMedia, string, error) {
	media, err := s.media.Stage(ctx, data)
	if err != nil {
		return models.StagedMedia{}, "", err
	}
	return media, s.mediaURL(media), nil
}

func (s *Service) buildPost(ctx context.Context, req Request) (publish.Post, string, error) {
	post := publish.Post{Caption: req.Caption}

	switch {
	case req.MediaID != "":
		media, err := s.media.Media(ctx, req.MediaID)
		if err != nil {
			if errors.Is(err, storage.ErrMediaNotFound) {
				return publish.Post{}, "", ErrMediaNotFound
			}
			return publish.Post{}, "", err
		}
		post.ImageData = media.Data
		post.ImageURL = s.mediaURL(media)
		return post, media.ID, nil

	case len(req.ImageData) > 0:
		media, err := s.media.Stage(ctx, req.ImageData)
		if err != nil {
			return publish.Post{}, "", err
		}
		post.ImageData = media.Data
		post.ImageURL = s.mediaURL(media)
		return post, media.ID, nil
	}

	return post, "", nil
}

func (s *Service) mediaURL(media models.StagedMedia) string {
	return fmt.Sprintf("%s/media/%s.%s", s.baseURL, media.ID, media.Format)
}

// Retryable is the publish retry predicate: platform post-creation
// errors only. Upload failures, renewal failures, and anything local
// return immediately.
func Retryable(err error) bool {
	var perr *publish.Error
	return errors.As(err, &perr)
}
