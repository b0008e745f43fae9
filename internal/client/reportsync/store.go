package reportsync

import (
	"context"
	"sync"
	"time"

	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/client/repositories/drafts"
	"github.com/elecmate/certsync/internal/client/repositories/recovery"
	"github.com/elecmate/certsync/internal/logging"
)

// LocalStore is the device-side copy of every draft plus the recoverable
// draft records.
//
// Its writes never fail from the caller's point of view. When the database
// errors, the store keeps the draft in memory for this session and returns a
// *LocalStorageError for the status line.
type LocalStore struct {
	drafts   drafts.Repository
	recovery recovery.Repository
	logger   logging.Logger
	now      func() time.Time

	mu       sync.Mutex
	fallback map[string]drafts.Record
}

func NewLocalStore(d drafts.Repository, r recovery.Repository, logger logging.Logger) *LocalStore {
	return &LocalStore{
		drafts:   d,
		recovery: r,
		logger:   logger.With("module", "localstore"),
		now:      time.Now,
		fallback: make(map[string]drafts.Record),
	}
}

func (s *LocalStore) degrade(ctx context.Context, op string, err error) *LocalStorageError {
	s.logger.Warn(ctx, "local storage degraded", "op", op, "error", err)
	return &LocalStorageError{Op: op, Err: err}
}

// SaveOptions controls the recoverable-draft side effect of Save.
type SaveOptions struct {
	// UpdateRecovery writes the snapshot as the recoverable draft of its
	// report type.
	UpdateRecovery bool
}

// Save writes the snapshot. The only possible error is a *LocalStorageError.
func (s *LocalStore) Save(ctx context.Context, snap models.DraftSnapshot, fp string, opts SaveOptions) error {
	rec := drafts.Record{Snapshot: snap, Fingerprint: fp, SavedAt: s.now()}

	var warn error
	if err := s.drafts.Upsert(ctx, rec); err != nil {
		s.mu.Lock()
		s.fallback[snap.LocalID] = rec
		s.mu.Unlock()
		warn = s.degrade(ctx, "save draft", err)
	} else {
		s.mu.Lock()
		delete(s.fallback, snap.LocalID)
		s.mu.Unlock()
	}

	if opts.UpdateRecovery {
		r := models.RecoverableDraft{
			ReportType:        snap.ReportType,
			LocalID:           snap.LocalID,
			CertificateNumber: snap.CertificateNumber,
			Payload:           snap.Payload.Clone(),
			CapturedAt:        rec.SavedAt,
		}
		if err := s.recovery.Put(ctx, r); err != nil && warn == nil {
			warn = s.degrade(ctx, "save recoverable draft", err)
		}
	}
	return warn
}

// MarkSynced records a cloud acknowledgement. When the acknowledged snapshot
// is also the latest one stored, the recoverable draft captured from this
// draft is dropped.
func (s *LocalStore) MarkSynced(ctx context.Context, snap models.DraftSnapshot, reportID string, version int64, fp string) error {
	var warn error
	if err := s.drafts.MarkSynced(ctx, snap.LocalID, reportID, version, fp, s.now()); err != nil {
		warn = s.degrade(ctx, "mark synced", err)
	}

	s.mu.Lock()
	if fb, ok := s.fallback[snap.LocalID]; ok {
		fb.SyncedFingerprint = fp
		fb.Snapshot.ReportID = reportID
		s.fallback[snap.LocalID] = fb
	}
	s.mu.Unlock()

	rec, err := s.Draft(ctx, snap.LocalID)
	if err != nil || (rec != nil && rec.Fingerprint != fp) {
		return warn
	}
	if err := s.recovery.DeleteOwned(ctx, snap.ReportType, snap.LocalID); err != nil && warn == nil {
		warn = s.degrade(ctx, "clear recoverable draft", err)
	}
	return warn
}

// LoadResult holds whichever of a stored draft or a recoverable record
// Load found.
type LoadResult struct {
	Draft       *drafts.Record
	Recoverable *models.RecoverableDraft
}

// Load looks up the stored draft for reportID, or the recoverable draft
// for t when reportID is empty. A zero LoadResult means nothing was found.
func (s *LocalStore) Load(ctx context.Context, t models.ReportType, reportID string) (LoadResult, error) {
	if reportID != "" {
		rec, err := s.drafts.GetByReportID(ctx, reportID)
		if err != nil {
			return LoadResult{}, s.degrade(ctx, "load draft", err)
		}
		if rec == nil {
			rec = s.fallbackByReportID(reportID)
		}
		return LoadResult{Draft: rec}, nil
	}

	r, err := s.recovery.Get(ctx, t)
	if err != nil {
		return LoadResult{}, s.degrade(ctx, "load recoverable draft", err)
	}
	return LoadResult{Recoverable: r}, nil
}

// Draft returns the stored draft with localID, or nil.
func (s *LocalStore) Draft(ctx context.Context, localID string) (*drafts.Record, error) {
	rec, err := s.drafts.Get(ctx, localID)
	if err == nil && rec != nil {
		return rec, nil
	}

	s.mu.Lock()
	fb, ok := s.fallback[localID]
	s.mu.Unlock()
	if ok {
		return &fb, nil
	}
	if err != nil {
		return nil, s.degrade(ctx, "load draft", err)
	}
	return nil, nil
}

func (s *LocalStore) Unsynced(ctx context.Context) ([]drafts.Record, error) {
	list, err := s.drafts.ListUnsynced(ctx)
	if err != nil {
		return nil, s.degrade(ctx, "list drafts", err)
	}
	return list, nil
}

// Replace removes a stored draft that is about to be overwritten by a
// cloud copy under a different local id.
func (s *LocalStore) Replace(ctx context.Context, localID string) error {
	if err := s.drafts.Delete(ctx, localID); err != nil {
		return s.degrade(ctx, "replace draft", err)
	}
	return nil
}

func (s *LocalStore) DiscardRecoverable(ctx context.Context, t models.ReportType) error {
	if err := s.recovery.Delete(ctx, t); err != nil {
		return s.degrade(ctx, "discard recoverable draft", err)
	}
	return nil
}

func (s *LocalStore) fallbackByReportID(reportID string) *drafts.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.fallback {
		if rec.Snapshot.ReportID == reportID {
			r := rec
			return &r
		}
	}
	return nil
}
