package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/client/repositories/metadata"
	"github.com/elecmate/certsync/internal/logging"
	"github.com/google/uuid"
)

const (
	metaDeviceID      = "device_id"
	metaLocalSequence = "certificate_seq"
)

type certificateNumberer interface {
	GenerateCertificateNumber(ctx context.Context, t models.ReportType) (string, error)
}

type onlineChecker interface {
	IsOnline() bool
}

type authStater interface {
	State() models.AuthState
}

// CertificateService issues certificate numbers. The store is asked first;
// offline or signed out, a device-scoped number is minted locally.
type CertificateService struct {
	remote  certificateNumberer
	meta    metadata.Repository
	online  onlineChecker
	auth    authStater
	timeout time.Duration
	now     func() time.Time
	logger  logging.Logger
}

func NewCertificateService(remote certificateNumberer, meta metadata.Repository, online onlineChecker, auth authStater, logger logging.Logger) *CertificateService {
	return &CertificateService{
		remote:  remote,
		meta:    meta,
		online:  online,
		auth:    auth,
		timeout: 5 * time.Second,
		now:     time.Now,
		logger:  logger.With("module", "certificates"),
	}
}

// Ensure gives d a certificate number unless it already has one. The guard
// lives on the Draft, so calling Ensure twice never yields two numbers.
func (s *CertificateService) Ensure(ctx context.Context, d *models.Draft) (string, error) {
	if d.HasCertificateNumber() {
		return d.CertificateNumber(), nil
	}
	n, err := s.Generate(ctx, d.ReportType)
	if err != nil {
		return "", err
	}
	if err := d.AssignCertificateNumber(n); err != nil {
		return "", err
	}
	return n, nil
}

func (s *CertificateService) Generate(ctx context.Context, t models.ReportType) (string, error) {
	if s.online.IsOnline() && s.auth.State() == models.AuthSignedIn {
		rctx, cancel := context.WithTimeout(ctx, s.timeout)
		n, err := s.remote.GenerateCertificateNumber(rctx, t)
		cancel()
		if err == nil {
			return n, nil
		}
		s.logger.Warn(ctx, "remote certificate numbering failed, using local sequence", "error", err)
	}
	return s.local(ctx, t)
}

// local numbers look like EICR-260314-3FA2-0007: type, date, device tag
// and a per-device sequence.
func (s *CertificateService) local(ctx context.Context, t models.ReportType) (string, error) {
	device, err := s.deviceTag(ctx)
	if err != nil {
		return "", err
	}
	seq, err := s.meta.Increment(ctx, metaLocalSequence)
	if err != nil {
		return "", fmt.Errorf("certificate sequence: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s-%04d", t.CertificatePrefix(), s.now().Format("060102"), device, seq), nil
}

func (s *CertificateService) deviceTag(ctx context.Context) (string, error) {
	id, err := s.meta.GetString(ctx, metaDeviceID)
	if err != nil {
		return "", fmt.Errorf("device id: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
		if err := s.meta.SetString(ctx, metaDeviceID, id); err != nil {
			return "", fmt.Errorf("device id: %w", err)
		}
	}
	tag := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(tag) < 4 {
		return "", errors.New("device id too short")
	}
	return tag[:4], nil
}
