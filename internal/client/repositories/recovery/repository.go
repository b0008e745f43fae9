// Package recovery keeps at most one recoverable draft per report type.
package recovery

import (
	"context"

	"github.com/elecmate/certsync/internal/client/models"
)

type Repository interface {
	// Put replaces the record for rec.ReportType.
	Put(ctx context.Context, rec models.RecoverableDraft) error
	// Get returns (nil, nil) when nothing is recoverable for t.
	Get(ctx context.Context, t models.ReportType) (*models.RecoverableDraft, error)
	Delete(ctx context.Context, t models.ReportType) error
	// DeleteOwned removes the record only if it was captured from localID.
	DeleteOwned(ctx context.Context, t models.ReportType, localID string) error
}
