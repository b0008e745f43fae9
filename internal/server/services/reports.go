package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elecmate/certsync/internal/common"
	"github.com/elecmate/certsync/internal/dbx"
	"github.com/elecmate/certsync/internal/logging"
	"github.com/elecmate/certsync/internal/server/models"
	"github.com/elecmate/certsync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// SaveReportInput is one save-report call.
type SaveReportInput struct {
	// ReportID is empty on a first push.
	ReportID          string
	ClientRef         string
	ReportType        string
	CustomerID        string
	CertificateNumber string
	Status            string
	Payload           map[string]any
}

type ReportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	archiver    Archiver
	logger      logging.Logger
}

// NewReportService builds the service. archiver may be nil, in which case
// completed reports are not archived.
func NewReportService(db *sql.DB, m repomanager.RepositoryManager, archiver Archiver, logger logging.Logger) *ReportService {
	return &ReportService{
		db:          db,
		repomanager: m,
		archiver:    archiver,
		logger:      logger.With("module", "reports"),
	}
}

func validateSave(in SaveReportInput) error {
	if !models.KnownReportType(in.ReportType) {
		return fmt.Errorf("%w: %q", common.ErrUnknownReportType, in.ReportType)
	}
	if in.ReportID == "" && in.ClientRef == "" {
		return fmt.Errorf("%w: client_ref is required for a new report", common.ErrBadRequest)
	}
	if in.CertificateNumber == "" {
		return common.ErrCertificateNumberRequired
	}
	switch in.Status {
	case models.ReportStatusDraft, models.ReportStatusCompleted:
	default:
		return fmt.Errorf("%w: unknown status %q", common.ErrBadRequest, in.Status)
	}
	return nil
}

// Save creates or updates a report owned by userID and bumps its version.
//
// A first push (no report id) is matched to an earlier one carrying the
// same client ref, so a replayed create updates the stored report instead
// of adding a second one. The certificate number and report type never
// change once stored.
func (s *ReportService) Save(ctx context.Context, userID string, in SaveReportInput) (*models.Report, error) {
	if err := validateSave(in); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(in.Payload)
	if err != nil || in.Payload == nil {
		return nil, fmt.Errorf("%w: payload must be an object", common.ErrInvalidPayload)
	}

	var saved *models.Report
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Reports(tx)

		existing, err := s.lockExisting(ctx, tx, userID, in)
		if err != nil {
			return err
		}

		if existing == nil {
			rep := &models.Report{
				ID:                uuid.NewString(),
				UserID:            userID,
				ClientRef:         in.ClientRef,
				ReportType:        in.ReportType,
				CustomerID:        in.CustomerID,
				CertificateNumber: in.CertificateNumber,
				Status:            in.Status,
				Payload:           payload,
			}
			err := repo.Create(ctx, rep)
			if err == nil {
				saved = rep
				return nil
			}
			if !errors.Is(err, common.ErrorAlreadyExists) {
				return err
			}
			// A concurrent first push with the same client ref won the insert.
			if existing, err = s.lockExisting(ctx, tx, userID, in); err != nil {
				return err
			}
			if existing == nil {
				return common.ErrorInternal
			}
		}

		if existing.CertificateNumber != in.CertificateNumber {
			return fmt.Errorf("%w: report %s is %s", common.ErrCertificateNumberImmutable, existing.ID, existing.CertificateNumber)
		}
		if existing.ReportType != in.ReportType {
			return common.ErrReportTypeImmutable
		}

		existing.Status = in.Status
		existing.Payload = payload
		if in.CustomerID != "" {
			existing.CustomerID = in.CustomerID
		}
		if err := repo.Update(ctx, existing); err != nil {
			return err
		}
		saved = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	if saved.Status == models.ReportStatusCompleted && s.archiver != nil {
		if err := s.archiver.Archive(ctx, saved); err != nil {
			s.logger.Error(ctx, "failed to archive completed report", "report_id", saved.ID, "error", err)
		}
	}
	return saved, nil
}

// lockExisting finds and row-locks the report in targets, or returns nil
// when this is a genuine first push.
func (s *ReportService) lockExisting(ctx context.Context, tx dbx.DBTX, userID string, in SaveReportInput) (*models.Report, error) {
	repo := s.repomanager.Reports(tx)

	id := in.ReportID
	if id == "" {
		found, err := repo.GetByClientRef(ctx, userID, in.ClientRef)
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		id = found.ID
	}

	rep, err := repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return rep, nil
}

// Get returns the report if userID owns it; others get common.ErrorNotFound.
func (s *ReportService) Get(ctx context.Context, userID, reportID string) (*models.Report, error) {
	if reportID == "" {
		return nil, fmt.Errorf("%w: report_id is required", common.ErrBadRequest)
	}
	rep, err := s.repomanager.Reports(s.db).GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rep.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return rep, nil
}

// LinkCustomer attaches a customer to a report without bumping its version.
func (s *ReportService) LinkCustomer(ctx context.Context, userID, reportID, customerID string) error {
	if reportID == "" || customerID == "" {
		return fmt.Errorf("%w: report_id and customer_id are required", common.ErrBadRequest)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Reports(tx)
		rep, err := repo.GetForUpdate(ctx, reportID)
		if err != nil {
			return err
		}
		if rep.UserID != userID {
			return common.ErrorNotFound
		}
		return repo.SetCustomer(ctx, reportID, customerID)
	})
}
