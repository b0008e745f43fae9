// Package refreshtokens declares the server-side repository contract for
// refresh tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/elecmate/certsync/internal/server/models"
)

// Repository issues and consumes single-use refresh tokens.
type Repository interface {
	// Create stores a new refresh token for userID expiring at expires.
	Create(ctx context.Context, userID string, token string, expires time.Time) error

	// Consume deletes the token and returns what it held. A token can be
	// consumed once; later calls get common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// PurgeExpired removes tokens that expired before now and returns how
	// many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
