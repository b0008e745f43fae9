package models

import "time"

// RecoverableDraft is a local-only copy of work that never reached the
// cloud. There is at most one per report type. It is offered on a blank
// form and never merged automatically.
type RecoverableDraft struct {
	ReportType        ReportType
	LocalID           string
	CertificateNumber string
	Payload           Payload
	CapturedAt        time.Time
}

// Summary is a short, human readable preview line.
func (r *RecoverableDraft) Summary() string {
	if r == nil {
		return ""
	}
	label := r.CertificateNumber
	if label == "" {
		label = string(r.ReportType)
	}
	return label + " captured " + r.CapturedAt.Local().Format("02 Jan 2006 15:04")
}
