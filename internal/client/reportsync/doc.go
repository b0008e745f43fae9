// Package reportsync keeps an open certificate form saved on the device and
// in the cloud.
//
// Every field edit is reported with Manager.NotifyChanged. The Scheduler
// waits for a quiet window, then runs one save-and-sync cycle: the
// LocalStore writes the snapshot (this always succeeds from the caller's
// point of view) and the Engine pushes it to the report store. A push that
// cannot be made or does not complete is handed to the OfflineQueue, which
// replays queued writes in order once the device is online and signed in.
// The Aggregator folds all of this into one models.SyncStatus, the only sync
// state the UI reads.
//
// Only one cycle runs at a time per form, and the Engine never has two
// pushes in flight for the same report.
package reportsync
