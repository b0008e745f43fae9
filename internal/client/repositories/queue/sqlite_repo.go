package queue

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

const selectColumns = `id, local_id, report_id, report_type, snapshot, enqueued_at, attempt_count, last_error`

func (r *SQLiteRepository) Append(ctx context.Context, c models.QueuedChange) (int64, error) {
	snap, err := json.Marshal(c.Snapshot)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	if c.EnqueuedAt.IsZero() {
		c.EnqueuedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO queued_changes (local_id, report_id, report_type, snapshot, enqueued_at, attempt_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.LocalID, dbx.NullString(c.ReportID), string(c.ReportType), string(snap),
		dbx.FormatTime(c.EnqueuedAt), c.AttemptCount, c.LastError)
	if err != nil {
		return 0, fmt.Errorf("append queued change: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append queued change: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) Head(ctx context.Context) (*models.QueuedChange, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM queued_changes ORDER BY id LIMIT 1`)
	c, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue head: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.QueuedChange, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM queued_changes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list queued changes: %w", err)
	}
	defer rows.Close()

	var result []models.QueuedChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued change: %w", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued changes: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queued changes: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queued_changes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove queued change %d: %w", id, err)
	}
	if err := dbx.RowsAffectedExactly(res, 1); err != nil {
		return fmt.Errorf("remove queued change %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) RecordFailure(ctx context.Context, id int64, lastErr string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queued_changes SET attempt_count = attempt_count + 1, last_error = ? WHERE id = ?
	`, lastErr, id)
	if err != nil {
		return fmt.Errorf("record failure on %d: %w", id, err)
	}
	if err := dbx.RowsAffectedExactly(res, 1); err != nil {
		return fmt.Errorf("record failure on %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) AssignReportID(ctx context.Context, localID, reportID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE queued_changes SET report_id = ? WHERE local_id = ? AND report_id IS NULL
	`, reportID, localID)
	if err != nil {
		return fmt.Errorf("assign report id to %s: %w", localID, err)
	}
	return nil
}

func (r *SQLiteRepository) Latest(ctx context.Context, localID string) (*models.QueuedChange, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM queued_changes WHERE local_id = ? ORDER BY id DESC LIMIT 1`, localID)
	c, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest queued change of %s: %w", localID, err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChange(s scanner) (*models.QueuedChange, error) {
	var (
		c                    models.QueuedChange
		reportID             sql.NullString
		reportType           string
		snapshot, enqueuedAt string
	)
	err := s.Scan(&c.ID, &c.LocalID, &reportID, &reportType, &snapshot, &enqueuedAt, &c.AttemptCount, &c.LastError)
	if err != nil {
		return nil, err
	}
	c.ReportID = reportID.String
	c.ReportType = models.ReportType(reportType)

	if err := json.Unmarshal([]byte(snapshot), &c.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if c.Snapshot.Payload == nil {
		c.Snapshot.Payload = models.Payload{}
	}
	// the id may have been assigned after the snapshot was taken
	if c.Snapshot.ReportID == "" {
		c.Snapshot.ReportID = c.ReportID
	}
	if c.EnqueuedAt, err = dbx.ParseTime(enqueuedAt); err != nil {
		return nil, fmt.Errorf("decode enqueued_at: %w", err)
	}
	return &c, nil
}
