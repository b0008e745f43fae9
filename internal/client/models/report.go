// Package models defines the client-side report types: the live Draft, its
// persisted snapshot, recoverable drafts, queued cloud writes and the
// composite sync status shown to the user.
package models

import (
	"fmt"
	"strings"

	"github.com/elecmate/certsync/internal/common"
)

// ReportType classifies a certificate. It never changes for a Draft.
type ReportType string

const (
	ReportTypeEIC        ReportType = "eic"
	ReportTypeEICR       ReportType = "eicr"
	ReportTypeMinorWorks ReportType = "minor-works"
)

var reportTypes = []ReportType{ReportTypeEIC, ReportTypeEICR, ReportTypeMinorWorks}

func ReportTypes() []ReportType {
	out := make([]ReportType, len(reportTypes))
	copy(out, reportTypes)
	return out
}

func ParseReportType(s string) (ReportType, error) {
	t := ReportType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownReportType, s)
	}
	return t, nil
}

func (t ReportType) Valid() bool {
	for _, known := range reportTypes {
		if t == known {
			return true
		}
	}
	return false
}

// CertificatePrefix is the prefix used on certificate numbers of this type.
func (t ReportType) CertificatePrefix() string {
	switch t {
	case ReportTypeEIC:
		return "EIC"
	case ReportTypeEICR:
		return "EICR"
	case ReportTypeMinorWorks:
		return "MW"
	}
	return "CERT"
}

type ReportStatus string

const (
	StatusDraft     ReportStatus = "draft"
	StatusCompleted ReportStatus = "completed"
)
