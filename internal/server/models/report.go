// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"time"
)

const (
	ReportStatusDraft     = "draft"
	ReportStatusCompleted = "completed"
)

var certificatePrefixes = map[string]string{
	"eic":         "EIC",
	"eicr":        "EICR",
	"minor-works": "MW",
}

// KnownReportType reports whether t is a certificate type the store accepts.
func KnownReportType(t string) bool {
	_, ok := certificatePrefixes[t]
	return ok
}

// CertificateNumber formats the n-th number issued for report type t.
func CertificateNumber(t string, n int64) string {
	return fmt.Sprintf("%s-%06d", certificatePrefixes[t], n)
}

// Report is the stored copy of one certificate.
type Report struct {
	ID     string
	UserID string
	// ClientRef is the device-local id of the first push. It is unique per
	// user and makes a replayed create land on the same report.
	ClientRef         string
	ReportType        string
	CustomerID        string
	CertificateNumber string
	Status            string
	// Payload is the form body as JSON.
	Payload   []byte
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
