package recovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, rec models.RecoverableDraft) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recoverable_drafts (report_type, local_id, certificate_number, payload, captured_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(report_type) DO UPDATE SET
			local_id = excluded.local_id,
			certificate_number = excluded.certificate_number,
			payload = excluded.payload,
			captured_at = excluded.captured_at
	`, string(rec.ReportType), rec.LocalID, rec.CertificateNumber, string(payload), dbx.FormatTime(rec.CapturedAt))
	if err != nil {
		return fmt.Errorf("put recoverable %s: %w", rec.ReportType, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, t models.ReportType) (*models.RecoverableDraft, error) {
	var (
		rec                 = models.RecoverableDraft{ReportType: t}
		payload, capturedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT local_id, certificate_number, payload, captured_at
		FROM recoverable_drafts WHERE report_type = ?
	`, string(t)).Scan(&rec.LocalID, &rec.CertificateNumber, &payload, &capturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recoverable %s: %w", t, err)
	}

	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, fmt.Errorf("decode recoverable payload: %w", err)
	}
	if rec.Payload == nil {
		rec.Payload = models.Payload{}
	}
	if rec.CapturedAt, err = dbx.ParseTime(capturedAt); err != nil {
		return nil, fmt.Errorf("decode captured_at: %w", err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, t models.ReportType) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recoverable_drafts WHERE report_type = ?`, string(t)); err != nil {
		return fmt.Errorf("delete recoverable %s: %w", t, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteOwned(ctx context.Context, t models.ReportType, localID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recoverable_drafts WHERE report_type = ? AND local_id = ?`, string(t), localID)
	if err != nil {
		return fmt.Errorf("delete recoverable %s: %w", t, err)
	}
	return nil
}
