package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `local_id, report_id, report_type, customer_id, certificate_number, status,
	version, payload, fingerprint, synced_fingerprint, saved_at, synced_at`

func (r *SQLiteRepository) Upsert(ctx context.Context, rec Record) error {
	s := rec.Snapshot
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}

	query := `
		INSERT INTO drafts (local_id, report_id, report_type, customer_id, certificate_number,
			status, version, payload, fingerprint, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			report_id = COALESCE(excluded.report_id, drafts.report_id),
			customer_id = excluded.customer_id,
			certificate_number = excluded.certificate_number,
			status = excluded.status,
			version = MAX(excluded.version, drafts.version),
			payload = excluded.payload,
			fingerprint = excluded.fingerprint,
			saved_at = excluded.saved_at
	`
	_, err = r.db.ExecContext(ctx, query,
		s.LocalID, dbx.NullString(s.ReportID), string(s.ReportType), dbx.NullString(s.CustomerID),
		s.CertificateNumber, string(s.Status), s.Version, string(payload), rec.Fingerprint,
		dbx.FormatTime(rec.SavedAt))
	if err != nil {
		return fmt.Errorf("upsert draft %s: %w", s.LocalID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, localID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM drafts WHERE local_id = ?`, localID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft %s: %w", localID, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetByReportID(ctx context.Context, reportID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM drafts WHERE report_id = ?`, reportID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft by report %s: %w", reportID, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, localID, reportID string, version int64, fingerprint string, at time.Time) error {
	query := `
		UPDATE drafts SET
			report_id = COALESCE(?, report_id),
			version = MAX(?, version),
			synced_fingerprint = ?,
			synced_at = ?
		WHERE local_id = ?
	`
	res, err := r.db.ExecContext(ctx, query, dbx.NullString(reportID), version, fingerprint, dbx.FormatTime(at), localID)
	if err != nil {
		return fmt.Errorf("mark draft %s synced: %w", localID, err)
	}
	if err := dbx.RowsAffectedExactly(res, 1); err != nil {
		return fmt.Errorf("mark draft %s synced: %w", localID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, localID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("delete draft %s: %w", localID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListUnsynced(ctx context.Context) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM drafts
		WHERE synced_fingerprint = '' OR synced_fingerprint <> fingerprint
		ORDER BY saved_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unsynced drafts: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft row: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draft rows: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec                            Record
		reportID, customerID, syncedAt sql.NullString
		reportType, status             string
		payload, savedAt               string
	)
	err := s.Scan(&rec.Snapshot.LocalID, &reportID, &reportType, &customerID,
		&rec.Snapshot.CertificateNumber, &status, &rec.Snapshot.Version, &payload,
		&rec.Fingerprint, &rec.SyncedFingerprint, &savedAt, &syncedAt)
	if err != nil {
		return nil, err
	}

	rec.Snapshot.ReportID = reportID.String
	rec.Snapshot.CustomerID = customerID.String
	rec.Snapshot.ReportType = models.ReportType(reportType)
	rec.Snapshot.Status = models.ReportStatus(status)

	if err := json.Unmarshal([]byte(payload), &rec.Snapshot.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if rec.Snapshot.Payload == nil {
		rec.Snapshot.Payload = models.Payload{}
	}
	if rec.SavedAt, err = dbx.ParseTime(savedAt); err != nil {
		return nil, fmt.Errorf("decode saved_at: %w", err)
	}
	rec.Snapshot.UpdatedAt = rec.SavedAt
	if rec.SyncedAt, err = dbx.ParseNullTime(syncedAt); err != nil {
		return nil, fmt.Errorf("decode synced_at: %w", err)
	}
	return &rec, nil
}
