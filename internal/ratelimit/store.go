package ratelimit

import (
	"context"
	"time"
)

// Store records requests per key.
type Store interface {
	// Record records a request now and returns how many requests the key made
	// within the trailing window, the new one included.
	Record(ctx context.Context, key string, window time.Duration) (count int64, err error)
}
