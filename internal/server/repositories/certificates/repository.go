// Package certificates hands out per-user certificate sequence numbers.
package certificates

import "context"

type Repository interface {
	// Next returns the next number in the user's sequence for reportType,
	// starting at 1. Numbers are never reused.
	Next(ctx context.Context, userID, reportType string) (int64, error)
}
