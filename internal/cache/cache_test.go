// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"cmstaxonomy/internal/store"
)

// TaxonomyCache must satisfy the store's cache port.
var _ store.Cache = (*TaxonomyCache)(nil)

// testValkeyClient returns a Redis client for tests.
// Skips if Valkey is unavailable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15, // Use DB 15 for tests.
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, keyPrefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestConnectValkey(t *testing.T) {
	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")

	client, err := ConnectValkey(context.Background(), host, port, "")
	if err != nil {
		t.Skipf("skipping: Valkey not available: %v", err)
	}
	defer client.Close()

	// Verify connection.
	ctx := context.Background()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if pong != "PONG" {
		t.Errorf("expected PONG, got %q", pong)
	}
}

func TestTaxonomyCacheSetAndGet(t *testing.T) {
	client := testValkeyClient(t)
	c := NewTaxonomyCache(client, 1*time.Minute)

	ctx := context.Background()

	// Miss.
	data, ok := c.Get(ctx, "categories:tree")
	if ok {
		t.Error("expected cache miss")
	}
	if data != nil {
		t.Error("expected nil data on miss")
	}

	// Set.
	tree := []byte(`[{"name":"News","children":[]}]`)
	c.Set(ctx, "categories:tree", tree)

	// Hit.
	data, ok = c.Get(ctx, "categories:tree")
	if !ok {
		t.Error("expected cache hit")
	}
	if string(data) != string(tree) {
		t.Errorf("data mismatch: got %q, want %q", data, tree)
	}

	// Stored under the prefix.
	if n, _ := client.Exists(ctx, keyPrefix+"categories:tree").Result(); n != 1 {
		t.Errorf("expected prefixed key to exist, got %d", n)
	}
}

func TestTaxonomyCacheInvalidate(t *testing.T) {
	client := testValkeyClient(t)
	c := NewTaxonomyCache(client, 1*time.Minute)

	ctx := context.Background()

	c.Set(ctx, "categories:tree", []byte("tree"))
	c.Set(ctx, "tags:active", []byte("tags"))
	c.Set(ctx, "keep-me", []byte("kept"))

	// Verify it's cached.
	if _, ok := c.Get(ctx, "tags:active"); !ok {
		t.Fatal("expected cache hit before invalidation")
	}

	c.Invalidate(ctx, "categories:tree", "tags:active")
	c.Invalidate(ctx)

	for _, key := range []string{"categories:tree", "tags:active"} {
		if _, ok := c.Get(ctx, key); ok {
			t.Errorf("expected miss for %q after invalidation", key)
		}
	}
	if _, ok := c.Get(ctx, "keep-me"); !ok {
		t.Error("unrelated key was invalidated")
	}
}

func TestTaxonomyCacheInvalidateAll(t *testing.T) {
	client := testValkeyClient(t)
	c := NewTaxonomyCache(client, 1*time.Minute)

	ctx := context.Background()

	c.Set(ctx, "a", []byte("a"))
	c.Set(ctx, "b", []byte("b"))
	c.Set(ctx, "c", []byte("c"))

	// Keys outside the prefix survive.
	client.Set(ctx, "other:x", "x", time.Minute)
	t.Cleanup(func() { client.Del(ctx, "other:x") })

	c.InvalidateAll(ctx)

	for _, key := range []string{"a", "b", "c"} {
		if _, ok := c.Get(ctx, key); ok {
			t.Errorf("expected miss for %q after InvalidateAll", key)
		}
	}
	if n, _ := client.Exists(ctx, "other:x").Result(); n != 1 {
		t.Error("InvalidateAll removed a key outside the taxonomy prefix")
	}
}

func TestTaxonomyCacheUnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	c := NewTaxonomyCache(client, time.Minute)

	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"))
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected miss when Valkey is unreachable")
	}
	c.Invalidate(ctx, "k")
}

func TestNewTaxonomyCacheDefaultTTL(t *testing.T) {
	client := testValkeyClient(t)

	// TTL = 0 should use default.
	c := NewTaxonomyCache(client, 0)
	if c.ttl != DefaultTTL {
		t.Errorf("expected DefaultTTL (%v), got %v", DefaultTTL, c.ttl)
	}
}
