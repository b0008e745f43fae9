package models

import "time"

// QueuedChange is one cloud write waiting for connectivity or auth.
// Only the offline queue creates, updates or removes them.
type QueuedChange struct {
	ID           int64
	LocalID      string
	ReportID     string
	ReportType   ReportType
	Snapshot     DraftSnapshot
	EnqueuedAt   time.Time
	AttemptCount int
	LastError    string
}
