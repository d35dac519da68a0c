package ratelimit

import "context"

// RateLimiter bounds how often a keyed operation may run inside a time
// window. The portal throttles passcode issuance and verification per
// access link through this port.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
