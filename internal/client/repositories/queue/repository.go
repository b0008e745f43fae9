// Package queue stores pending cloud writes in arrival order.
package queue

import (
	"context"

	"github.com/elecmate/certsync/internal/client/models"
)

type Repository interface {
	// Append stores c at the tail and returns its sequence id.
	Append(ctx context.Context, c models.QueuedChange) (int64, error)
	// Head returns the oldest change, or (nil, nil) when empty.
	Head(ctx context.Context) (*models.QueuedChange, error)
	// List returns every change, oldest first.
	List(ctx context.Context) ([]models.QueuedChange, error)
	Count(ctx context.Context) (int, error)
	// Remove deletes an acknowledged change.
	Remove(ctx context.Context, id int64) error
	// RecordFailure bumps the attempt count and keeps the last error.
	RecordFailure(ctx context.Context, id int64, lastErr string) error
	// AssignReportID fills in the cloud id on queued changes of localID
	// that were enqueued before the report existed remotely.
	AssignReportID(ctx context.Context, localID, reportID string) error
	// Latest returns the newest change of localID, or (nil, nil) when none
	// is queued.
	Latest(ctx context.Context, localID string) (*models.QueuedChange, error)
}
