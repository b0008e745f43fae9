// Package drafts persists the latest local snapshot of every Draft on the
// device, together with the fingerprints the sync engine compares against.
package drafts

import (
	"context"
	"time"

	"github.com/elecmate/certsync/internal/client/models"
)

// Record is one stored Draft.
type Record struct {
	Snapshot models.DraftSnapshot
	// Fingerprint of Snapshot at the time it was written.
	Fingerprint string
	// SyncedFingerprint is the fingerprint last confirmed by the cloud;
	// empty while nothing has been acknowledged.
	SyncedFingerprint string
	SavedAt           time.Time
	SyncedAt          time.Time
}

// Synced reports whether the stored snapshot is the one the cloud holds.
func (r *Record) Synced() bool {
	return r.SyncedFingerprint != "" && r.SyncedFingerprint == r.Fingerprint
}

type Repository interface {
	// Upsert writes the snapshot. A stored report id is kept when the
	// snapshot has none; the synced fingerprint is never touched.
	Upsert(ctx context.Context, rec Record) error
	// Get returns (nil, nil) when the draft is unknown.
	Get(ctx context.Context, localID string) (*Record, error)
	GetByReportID(ctx context.Context, reportID string) (*Record, error)
	// MarkSynced records a cloud acknowledgement of the given fingerprint.
	MarkSynced(ctx context.Context, localID, reportID string, version int64, fingerprint string, at time.Time) error
	Delete(ctx context.Context, localID string) error
	// ListUnsynced returns drafts whose latest snapshot is not in the cloud,
	// oldest first.
	ListUnsynced(ctx context.Context) ([]Record, error)
}
