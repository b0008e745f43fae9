// Package metadata is a small key/value store for client state that has no
// table of its own: session tokens, the signed-in user and counters.
package metadata

import "context"

// Repository stores opaque values by key. A missing key reads as nil.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetString(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte) error
	SetString(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	// Increment adds one to an integer counter and returns the new value.
	// A missing counter starts at zero.
	Increment(ctx context.Context, key string) (int64, error)
}
