// Package client talks to the remote report store and bootstraps the local
// database.
//
// # Overview
//
// The package provides:
//  1. The Client interface: account calls (Register, GetSalt, Login), a
//     liveness Ping, and the report functions SaveReport, GetReport,
//     LinkCustomer and GenerateCertificateNumber.
//  2. GRPCClient, which invokes store functions by name over one gRPC
//     method, attaches the access token through an interceptor, refreshes
//     an expired token once and retries, and maps status codes to the
//     sentinel errors below.
//  3. InitDatabase and RunMigrations, which open the SQLite file and apply
//     the embedded goose migrations.
//
// # Error Handling
//
// Callers match errors with errors.Is: ErrUnavailable (unreachable or timed
// out), ErrUnauthorized (missing or expired session), ErrValidation (the store
// rejected the request; the *ValidationError carries the message to show),
// ErrNotFound and ErrRemote for anything else the store returned.
//
// GRPCClient is safe for concurrent use.
package client
