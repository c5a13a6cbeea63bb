package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a KV when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// KV is the raw key-value backend behind a Store. Patterns are shell globs
// ("*", "?", "[...]") in which '/' is an ordinary character on every backend;
// an empty pattern matches every key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}
