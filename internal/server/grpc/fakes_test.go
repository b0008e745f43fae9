package grpc

import (
	"context"
	"time"

	"github.com/elecmate/certsync/internal/logging"
	"github.com/elecmate/certsync/internal/server/models"
	"github.com/elecmate/certsync/internal/server/services"
)

type fakeUsers struct {
	gotUsername string
	gotSalt     []byte
	gotVerifier []byte
	gotRefresh  string

	salt []byte
	err  error
}

func (f *fakeUsers) Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error) {
	f.gotUsername, f.gotSalt, f.gotVerifier = username, salt, verifier
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: "u-new", UserName: username}, nil
}

func (f *fakeUsers) GetSalt(ctx context.Context, username string) ([]byte, error) {
	f.gotUsername = username
	return f.salt, f.err
}

func (f *fakeUsers) Login(ctx context.Context, username string, verifier []byte) (*services.TokenPair, error) {
	f.gotUsername, f.gotVerifier = username, verifier
	if f.err != nil {
		return nil, f.err
	}
	return &services.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, nil
}

func (f *fakeUsers) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	f.gotRefresh = refreshToken
	if f.err != nil {
		return nil, f.err
	}
	return &services.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
}

type fakeReports struct {
	gotUser     string
	gotSave     services.SaveReportInput
	gotReportID string
	gotCustomer string

	report *models.Report
	err    error
}

func (f *fakeReports) Save(ctx context.Context, userID string, in services.SaveReportInput) (*models.Report, error) {
	f.gotUser, f.gotSave = userID, in
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeReports) Get(ctx context.Context, userID, reportID string) (*models.Report, error) {
	f.gotUser, f.gotReportID = userID, reportID
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeReports) LinkCustomer(ctx context.Context, userID, reportID, customerID string) error {
	f.gotUser, f.gotReportID, f.gotCustomer = userID, reportID, customerID
	return f.err
}

type fakeCerts struct {
	gotUser, gotType string
	err              error
}

func (f *fakeCerts) Generate(ctx context.Context, userID, reportType string) (string, error) {
	f.gotUser, f.gotType = userID, reportType
	if f.err != nil {
		return "", f.err
	}
	return "EICR-000042", nil
}

func storedReport() *models.Report {
	return &models.Report{
		ID:                "r1",
		UserID:            "u1",
		ClientRef:         "local-1",
		ReportType:        "eicr",
		CustomerID:        "c1",
		CertificateNumber: "EICR-000001",
		Status:            models.ReportStatusDraft,
		Payload:           []byte(`{"client":{"name":"Jane"},"circuits":[{"ref":"1"}]}`),
		Version:           3,
		UpdatedAt:         time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	}
}

func nopLogger() logging.Logger { return logging.NewDiscardLogger() }

func newTestServer(secret string, us *fakeUsers, rs *fakeReports, cs *fakeCerts) *GRPCServer {
	s := NewGRPCServer("127.0.0.1:0", nopLogger(), nil, nil, nil, secret)
	// Typed nil pointers would make the interfaces non-nil.
	if us != nil {
		s.users = us
	}
	if rs != nil {
		s.reports = rs
	}
	if cs != nil {
		s.certs = cs
	}
	return s
}

func asUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}
