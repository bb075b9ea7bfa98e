package domain

import (
	"context"
	"time"
)

// SessionStore keeps in-flight assessment sessions so a session's
// domains can arrive in separate submissions. Backed by an in-process
// LRU (Community) or Redis (Pro).
type SessionStore interface {
	// Get retrieves a stored value. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Ping checks store health.
	Ping(ctx context.Context) error

	Close() error
}
