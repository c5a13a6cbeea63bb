// Package cache implements the local cache store: JSON values kept in a
// key-value backend with optional expiry. Reads never fail loudly; a missing,
// unparsable or expired entry simply reads as absent.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// envelope is the stored form of every value.
type envelope struct {
	Value     json.RawMessage `json:"v"`
	Timestamp int64           `json:"ts"`
	TTL       int64           `json:"ttl,omitempty"`
}

// Store wraps a KV with JSON encoding, expiry and an optional key namespace.
type Store struct {
	kv     KV
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New constructs a Store over kv.
func New(kv KV, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{kv: kv, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns a Store whose keys live under ns. Clearing it never
// touches keys outside the namespace.
func (s *Store) Namespace(ns string) *Store {
	child := *s
	child.prefix = s.prefix + ns + ":"
	return &child
}

// Get decodes the value stored under key into dst and reports whether it was
// found. Expired entries are evicted.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	raw, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || len(env.Value) == 0 {
		s.logger.Debug("cache entry unparsable", zap.String("key", key))
		return false
	}
	if env.TTL > 0 && s.now().UnixMilli() > env.Timestamp+env.TTL {
		s.logger.Debug("cache entry expired", zap.String("key", key))
		if err := s.kv.Delete(ctx, s.prefix+key); err != nil {
			s.logger.Warn("cache evict failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(env.Value, dst); err != nil {
		s.logger.Debug("cache entry has unexpected shape", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Has reports whether a live entry exists under key.
func (s *Store) Has(ctx context.Context, key string) bool {
	var discard json.RawMessage
	return s.Get(ctx, key, &discard)
}

// Set stores value under key. A zero ttl never expires. Failures are logged
// and reported as false.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	env := envelope{Value: data, Timestamp: s.now().UnixMilli()}
	if ttl > 0 {
		env.TTL = ttl.Milliseconds()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := s.kv.Set(ctx, s.prefix+key, string(raw), ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Delete removes exactly the given keys.
func (s *Store) Delete(ctx context.Context, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	if err := s.kv.Delete(ctx, full...); err != nil {
		s.logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return false
	}
	return true
}

// Clear removes every key matching pattern. An empty pattern removes every key
// visible to this Store, authentication keys included; callers that need to
// keep those must delete explicit keys instead.
func (s *Store) Clear(ctx context.Context, pattern string) {
	if pattern == "" {
		pattern = "*"
	}
	keys, err := s.kv.Keys(ctx, s.prefix+pattern)
	if err != nil {
		s.logger.Warn("cache list failed", zap.String("pattern", pattern), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		s.logger.Warn("cache clear failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// Keys lists the keys matching pattern, without the namespace prefix.
func (s *Store) Keys(ctx context.Context, pattern string) []string {
	if pattern == "" {
		pattern = "*"
	}
	keys, err := s.kv.Keys(ctx, s.prefix+pattern)
	if err != nil {
		s.logger.Warn("cache list failed", zap.String("pattern", pattern), zap.Error(err))
		return nil
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, s.prefix)
	}
	return keys
}
