// Package cache keeps pipeline results for a bounded time. Entries are
// immutable JSON blobs keyed by a content hash; a Store decides where they live.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"valuation_data/pkg/core/logging"

	"github.com/phuslu/log"
)

// DefaultTTL is how long an entry stays valid after it is written.
const DefaultTTL = 24 * time.Hour

// Entry is one stored value.
type Entry struct {
	Key       string
	Value     []byte
	WrittenAt time.Time
}

// Store persists entries. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, e Entry) error
	Clear(ctx context.Context) error
}

// Cache applies the TTL and JSON encoding on top of a Store.
type Cache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

// New wraps store. A non-positive ttl uses DefaultTTL.
func New(store Store, ttl time.Duration, logger *log.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now, logger: logging.OrNop(logger)}
}

// WithClock replaces the time source.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// TTL returns the configured lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get decodes the entry for key into v. Expired entries are misses.
func (c *Cache) Get(ctx context.Context, key string, v any) (bool, error) {
	e, err := c.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", short(key), err)
	}
	if e == nil {
		return false, nil
	}
	if age := c.now().Sub(e.WrittenAt); age >= c.ttl {
		c.logger.Debug().Str("key", short(key)).Dur("age", age).Msg("cache entry expired")
		return false, nil
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", short(key), err)
	}
	return true, nil
}

// Put encodes v and stores it with the current time.
func (c *Cache) Put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", short(key), err)
	}
	if err := c.store.Put(ctx, Entry{Key: key, Value: data, WrittenAt: c.now()}); err != nil {
		return fmt.Errorf("cache put %s: %w", short(key), err)
	}
	return nil
}

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	c.logger.Info().Msg("cache cleared")
	return nil
}

// Key hashes its parts into a hex SHA-256 cache key.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
