// Package cli provides the interactive certsync terminal client.
//
// It wires configuration, the local database, the report store client and
// the sync services, then runs a REPL in which an inspector fills in an EIC,
// EICR or Minor Works certificate field by field. Every edit goes through a
// reportsync.Manager, so the prompt always shows whether the form is saved
// on the device and in the cloud.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
