// Package storage provides the visitor-local persistence layer used for
// the Consent ID and the locally cached consent record. Implementations
// must expire entries on read: a TTL that has lapsed behaves exactly as
// if the key was never written.
package storage

import (
	"context"
	"time"
)

// Entry is a stored value with an optional expiry.
type Entry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"` // zero means never
}

// Expired reports whether the entry's TTL has lapsed.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Store is a small key/value store with per-entry TTL.
type Store interface {
	// Get returns nil, nil when the key is absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put writes the value. A zero ttl means the entry never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
