// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// Cache is the read-cache port owned by each store. The database stays the
// source of truth: stores only read through it and invalidate entries
// after a transaction commits, never write computed state back in place.
// Implementations swallow their own failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context, keys ...string)
}

// NopCache is used when no cache is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NopCache) Set(context.Context, string, []byte)        {}
func (NopCache) Invalidate(context.Context, ...string)      {}

// Cache keys.
const (
	keyCategoryTree = "categories:tree"
	keyTagList      = "tags:active"
)

// Option configures a store.
type Option func(*options)

type options struct {
	cache    Cache
	cacheLog *CacheLogStore
}

// WithCache sets the read cache used by the store.
func WithCache(c Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithCacheLog records every post-commit invalidation in the audit log.
func WithCacheLog(l *CacheLogStore) Option {
	return func(o *options) { o.cacheLog = l }
}

func buildOptions(opts []Option) options {
	o := options{cache: NopCache{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// genKey holds the current generation token of key. Every invalidation
// writes a fresh token, so an entry stored by a reader that loaded before
// the commit no longer matches and is treated as a miss.
func genKey(key string) string { return key + ":gen" }

func currentGen(ctx context.Context, c Cache, key string) string {
	raw, ok := c.Get(ctx, genKey(key))
	if !ok {
		return ""
	}
	return string(raw)
}

// cacheEntry is the stored form of a cached value.
type cacheEntry struct {
	Gen  string          `json:"gen"`
	Data json.RawMessage `json:"data"`
}

// invalidate bumps the generation of keys, drops them and logs the event.
// Only call it once the transaction that changed the underlying rows has
// committed.
func (o options) invalidate(ctx context.Context, entityType string, id uuid.UUID, action string, keys ...string) {
	for _, key := range keys {
		o.cache.Set(ctx, genKey(key), []byte(uuid.NewString()))
	}
	o.cache.Invalidate(ctx, keys...)
	if o.cacheLog != nil {
		o.cacheLog.Log(ctx, entityType, id, action)
	}
}

// cachedJSON reads key from c, falling back to load and storing its
// JSON encoding on a miss. The generation is read before load so a
// concurrent invalidation marks the stored entry stale.
func cachedJSON[T any](ctx context.Context, c Cache, key string, load func() (T, error)) (T, error) {
	gen := currentGen(ctx, c, key)
	if raw, ok := c.Get(ctx, key); ok {
		var e cacheEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			slog.Warn("discarding undecodable cache entry", "key", key)
		} else if e.Gen == gen {
			var v T
			if err := json.Unmarshal(e.Data, &v); err == nil {
				return v, nil
			}
			slog.Warn("discarding undecodable cache entry", "key", key)
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if raw, err := json.Marshal(cacheEntry{Gen: gen, Data: data}); err == nil {
		c.Set(ctx, key, raw)
	}
	return v, nil
}
