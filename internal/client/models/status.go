package models

import "time"

type LocalState string

const (
	LocalIdle    LocalState = "idle"
	LocalSaving  LocalState = "saving"
	LocalSaved   LocalState = "saved"
	LocalUnsaved LocalState = "unsaved"
)

type CloudState string

const (
	// CloudNotCreated is a draft that has never been pushed and has no
	// edits to push.
	CloudNotCreated CloudState = "not created"
	CloudSynced     CloudState = "synced"
	CloudSyncing    CloudState = "syncing"
	CloudQueued     CloudState = "queued"
	CloudOffline    CloudState = "offline"
	CloudError      CloudState = "error"
)

// SyncStatus is the only sync state the UI reads.
type SyncStatus struct {
	Local         LocalState
	Cloud         CloudState
	LastCloudSync time.Time
	ErrorMessage  string
	QueuedChanges int
	// Warning is set while local storage is degraded.
	Warning string
	// ReportID is the cloud id of the open report, once known.
	ReportID string
}

func (s SyncStatus) IsSaving() bool {
	return s.Local == LocalSaving || s.Cloud == CloudSyncing
}

func (s SyncStatus) HasUnsavedChanges() bool {
	if s.Local == LocalUnsaved {
		return true
	}
	return s.Cloud != CloudSynced && s.Cloud != CloudNotCreated
}

// SafeToClose drives the close warning: nothing in flight, nothing unsent.
func (s SyncStatus) SafeToClose() bool {
	return !s.IsSaving() && !s.HasUnsavedChanges()
}
