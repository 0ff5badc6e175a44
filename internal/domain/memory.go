package domain

import (
	"context"
	"encoding/json"
	"time"
)

// MemoryEntry is one coordination-store record. Value is kept as raw JSON so
// the store never interprets the payload, only round-trips it faithfully.
type MemoryEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the entry's expiry has passed at now.
func (e MemoryEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// MemoryStore is the shared key/value mechanism agents use to hand off data
// across a workflow. Expiry is lazy: there is no background sweep, so Keys
// may transiently report entries that the next Get will delete.
type MemoryStore interface {
	// Set stores value under key, overwriting unconditionally and resetting
	// any prior expiry. ttl <= 0 means the entry never expires.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get returns the decoded value, or ok=false when absent or expired.
	// Reading an expired entry deletes it as a side effect.
	Get(ctx context.Context, key string) (any, bool, error)
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	// Keys lists all stored keys.
	Keys(ctx context.Context) ([]string, error)
	// Clear removes every entry and leaves the store immediately re-usable.
	Clear(ctx context.Context) error
	// Close releases backing resources.
	Close() error
}
