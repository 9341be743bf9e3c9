// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// taxonomy.go provides a Valkey-backed read cache for taxonomy listings.
// Stores put serialized trees and tag lists here after a database read and
// drop them once a mutating transaction has committed. Entries are never
// patched in place, so a failed invalidation at worst serves a stale list
// until the TTL runs out.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// keyPrefix is the Valkey key prefix for cached taxonomy entries.
	keyPrefix = "taxonomy:"

	// DefaultTTL is how long a cached listing survives without invalidation.
	DefaultTTL = 5 * time.Minute
)

// TaxonomyCache implements store.Cache on top of Valkey. Errors are logged
// and treated as misses; the database stays authoritative.
type TaxonomyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTaxonomyCache creates a new cache backed by the given Valkey client.
func NewTaxonomyCache(client *redis.Client, ttl time.Duration) *TaxonomyCache {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &TaxonomyCache{client: client, ttl: ttl}
}

// Get returns the cached value for key.
func (c *TaxonomyCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("taxonomy cache get error", "key", key, "error", err)
		return nil, false
	}
	slog.Debug("taxonomy cache hit", "key", key)
	return val, true
}

// Set stores value under key with the configured TTL.
func (c *TaxonomyCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		slog.Warn("taxonomy cache set error", "key", key, "error", err)
	}
}

// Invalidate removes keys from the cache.
func (c *TaxonomyCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		slog.Warn("taxonomy cache invalidate error", "keys", keys, "error", err)
		return
	}
	slog.Debug("taxonomy cache invalidated", "keys", keys)
}

// InvalidateAll removes every taxonomy entry by scanning for the prefix.
// Used after out-of-band repairs such as the count reconciler.
func (c *TaxonomyCache) InvalidateAll(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("taxonomy cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("taxonomy cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("taxonomy cache fully cleared", "deleted", deleted)
	}
}
