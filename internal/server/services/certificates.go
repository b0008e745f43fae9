package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/elecmate/certsync/internal/common"
	"github.com/elecmate/certsync/internal/server/models"
	"github.com/elecmate/certsync/internal/server/repositories/repomanager"
)

// CertificateService issues certificate numbers from a per-user, per-type
// sequence, e.g. EICR-000042.
type CertificateService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewCertificateService(db *sql.DB, m repomanager.RepositoryManager) *CertificateService {
	return &CertificateService{db: db, repomanager: m}
}

func (s *CertificateService) Generate(ctx context.Context, userID, reportType string) (string, error) {
	if !models.KnownReportType(reportType) {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownReportType, reportType)
	}
	n, err := s.repomanager.Certificates(s.db).Next(ctx, userID, reportType)
	if err != nil {
		return "", fmt.Errorf("error generating certificate number: %w", err)
	}
	return models.CertificateNumber(reportType, n), nil
}
