// Package logging is the structured logger shared by the sync client and the
// report store. Components take a Logger and scope it with
// With("module", name) when they are built.
package logging

import "context"

// Logger takes a message plus alternating key/value args:
//
//	logger.Info(ctx, "report saved", "report_id", id, "version", v)
type Logger interface {
	// Debug is for scheduler ticks, queue transitions and per-call traces.
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	// Warn marks a degraded but recoverable state, such as a local store
	// write that fell back to memory.
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
}
