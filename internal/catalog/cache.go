package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-fulfillment/internal/pricing"
)

// Cache stores catalog entries as JSON under prefix+id. A nil Cache or client
// disables caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs an entry cache. An empty prefix defaults to "catalog:entry:".
func NewCache(client *redis.Client, ttl time.Duration, prefix string) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "catalog:entry:"
	}
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

func (c *Cache) key(id string) string { return c.prefix + id }

// Lookup fetches ids in one MGET. Misses and undecodable values are absent from
// the result so callers reload them.
func (c *Cache) Lookup(ctx context.Context, ids []string) (map[string]pricing.CatalogEntry, error) {
	found := make(map[string]pricing.CatalogEntry, len(ids))
	if !c.enabled() || len(ids) == 0 {
		return found, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return found, err
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry pricing.CatalogEntry
		if json.Unmarshal([]byte(raw), &entry) != nil || entry.ID != ids[i] {
			continue
		}
		found[ids[i]] = entry
	}
	return found, nil
}

// Store writes entries in a single pipeline with the configured TTL.
func (c *Cache) Store(ctx context.Context, entries []pricing.CatalogEntry) error {
	if !c.enabled() || len(entries) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			pipe.Set(ctx, c.key(e.ID), data, c.ttl)
		}
		return nil
	})
	return err
}

// Evict removes ids from the cache.
func (c *Cache) Evict(ctx context.Context, ids ...string) error {
	if !c.enabled() || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
