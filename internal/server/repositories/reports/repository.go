// Package reports stores certificate reports on the server.
package reports

import (
	"context"

	"github.com/elecmate/certsync/internal/server/models"
)

type Repository interface {
	// Create inserts r with version 1. A report with the same (user,
	// client_ref) already stored yields common.ErrorAlreadyExists.
	Create(ctx context.Context, r *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	// GetForUpdate is GetByID that also row-locks the report until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Report, error)
	GetByClientRef(ctx context.Context, userID, clientRef string) (*models.Report, error)
	// Update writes the mutable fields of r and bumps its version. r.Version
	// and r.UpdatedAt are refreshed from the row.
	Update(ctx context.Context, r *models.Report) error
	SetCustomer(ctx context.Context, id, customerID string) error
}
