// Package kv is the key-value contract behind the session ledger and the
// reset challenge store, with a Redis implementation and an in-process one.
package kv

import (
	"context"
	"time"
)

// Store is a key-value store with per-key time-to-live.
//
// A missing or expired key is reported as ("", false, nil) by Get and
// false by Exists; errors are reserved for transport failures.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes key only if it currently holds expected.
	// It reports whether the key was removed, atomically with the compare.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}
