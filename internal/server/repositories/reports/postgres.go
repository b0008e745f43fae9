package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/elecmate/certsync/internal/common"
	"github.com/elecmate/certsync/internal/dbx"
	"github.com/elecmate/certsync/internal/server/models"
)

const reportColumns = `id, user_id, client_ref, report_type, customer_id, certificate_number, status, payload, version, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rep *models.Report) error {
	query := `
		INSERT INTO reports (id, user_id, client_ref, report_type, customer_id, certificate_number, status, payload, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		ON CONFLICT (user_id, client_ref) DO NOTHING
		RETURNING version, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		rep.ID, rep.UserID, rep.ClientRef, rep.ReportType, rep.CustomerID,
		rep.CertificateNumber, rep.Status, rep.Payload,
	).Scan(&rep.Version, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	return r.getOne(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Report, error) {
	return r.getOne(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) GetByClientRef(ctx context.Context, userID, clientRef string) (*models.Report, error) {
	return r.getOne(ctx, `SELECT `+reportColumns+` FROM reports WHERE user_id = $1 AND client_ref = $2`, userID, clientRef)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Report, error) {
	rep := &models.Report{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&rep.ID, &rep.UserID, &rep.ClientRef, &rep.ReportType, &rep.CustomerID,
		&rep.CertificateNumber, &rep.Status, &rep.Payload, &rep.Version,
		&rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rep, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rep *models.Report) error {
	query := `
		UPDATE reports
		SET customer_id = $2, status = $3, payload = $4, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING version, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, rep.ID, rep.CustomerID, rep.Status, rep.Payload).
		Scan(&rep.Version, &rep.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetCustomer(ctx context.Context, id, customerID string) error {
	query := `UPDATE reports SET customer_id = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, customerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
