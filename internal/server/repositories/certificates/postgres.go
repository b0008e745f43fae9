package certificates

import (
	"context"
	"fmt"

	"github.com/elecmate/certsync/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Next(ctx context.Context, userID, reportType string) (int64, error) {
	query := `
		INSERT INTO certificate_sequences (user_id, report_type, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, report_type)
		DO UPDATE SET last_value = certificate_sequences.last_value + 1
		RETURNING last_value
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID, reportType).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
