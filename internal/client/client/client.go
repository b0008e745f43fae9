package client

import (
	"context"
	"time"

	"github.com/elecmate/certsync/internal/client/models"
)

// Tokens is the session issued by login and refresh-token.
type Tokens struct {
	Access  string
	Refresh string
}

// SaveResult is the store's acknowledgement of a save-report call.
type SaveResult struct {
	ReportID  string
	Version   int64
	UpdatedAt time.Time
}

type Client interface {
	Close() error
	Ping(ctx context.Context) error

	Register(ctx context.Context, username string, salt []byte, verifier string) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	// Login stores the issued tokens on the client and returns them.
	Login(ctx context.Context, username string, verifier string) (Tokens, error)
	SetTokens(t Tokens)
	Tokens() Tokens

	// SaveReport creates the report when s.ReportID is empty; the store
	// de-duplicates creates by s.LocalID.
	SaveReport(ctx context.Context, s models.DraftSnapshot) (SaveResult, error)
	GetReport(ctx context.Context, reportID string) (models.DraftSnapshot, error)
	LinkCustomer(ctx context.Context, reportID, customerID string) error
	GenerateCertificateNumber(ctx context.Context, t models.ReportType) (string, error)
}
