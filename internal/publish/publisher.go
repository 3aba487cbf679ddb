package publish

import (
	"context"

	"github.com/syedkazim110/social-oauth-service/internal/domain/models"
)

// Post is the platform-independent publish request. ImageData holds the
// bytes for platforms that take direct uploads; ImageURL points at a
// publicly reachable copy for platforms that fetch the image themselves.
type Post struct {
	Caption   string
	ImageURL  string
	ImageData []byte
}

// Publisher creates a post on one platform. The connection arrives with
// tokens already decrypted and, where applicable, freshly renewed.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, conn models.Connection, post Post) (models.PostResult, error)
}
