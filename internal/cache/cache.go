package cache

import (
	"context"
	"time"
)

// Cache is an explicit key/value cache port with first-class lifetime.
// Write sites invalidate explicitly; there is no ambient global state.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores the value only when the key is absent, returning
	// whether this caller won. Used as the calendar-day reminder
	// dedupe guard.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, key string) error
}
