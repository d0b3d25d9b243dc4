// Package kv abstracts the shared key-value store holding cross-node relay
// state: the route table, per-user offline queues, and the group membership
// cache.
package kv

import (
	"context"
	"time"
)

// Store is the slice of KV operations the relay depends on. String values
// carry TTLs; list values are ordered and trimmable. Implementations must be
// safe for concurrent use.
type Store interface {
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Del removes key, list or string. Missing keys are not an error.
	Del(ctx context.Context, key string) error
	// RPush appends values to the list at key, creating it if absent.
	RPush(ctx context.Context, key string, values ...string) error
	// LRange returns list elements between start and stop inclusive.
	// Negative indices count from the tail, Redis style.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// LTrim keeps only the elements between start and stop inclusive.
	LTrim(ctx context.Context, key string, start, stop int64) error
}
