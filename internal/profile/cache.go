// Package profile implements the bounded cache in front of the external
// profile lookup backend. Keys are opaque digests of raw user IDs so raw
// identifiers never enter the in-process cache.
package profile

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"chatgate/internal/digest"
)

// Profile is the enrichment data attached to an outbound envelope.
type Profile struct {
	DisplayName string
	Mobile      string
}

// Loader queries the external profile backend. It is supplied by the
// caller; the cache never constructs one itself.
type Loader interface {
	LoadProfile(ctx context.Context, customerID string) (Profile, error)
}

// Cache is a sharded, bounded, least-recently-used cache over Loader.
// Sharding by the low bits of an FNV-1a hash of the digest spreads lock
// contention across N
// independently-locked shards while preserving LRU semantics within each.
type Cache struct {
	loader Loader
	shards []*shard
	mask   uint32
}

type shard struct {
	lru *lru.Cache[string, Profile]
}

// New constructs a Cache with the given total capacity spread evenly across
// shardCount shards (both rounded up to keep behavior predictable at small
// sizes). shardCount must be a power of two; non-power-of-two values are
// rounded up.
func New(loader Loader, capacity, shardCount int) (*Cache, error) {
	if capacity < 1 {
		capacity = 1
	}
	shardCount = nextPow2(shardCount)
	perShard := (capacity + shardCount - 1) / shardCount
	if perShard < 1 {
		perShard = 1
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		c, err := lru.New[string, Profile](perShard)
		if err != nil {
			return nil, err
		}
		shards[i] = &shard{lru: c}
	}

	return &Cache{loader: loader, shards: shards, mask: uint32(shardCount - 1)}, nil
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (c *Cache) shardFor(key string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return c.shards[h&c.mask]
}

// Load returns the profile for rawID, consulting the cache first and
// falling back to the Loader on a miss. A load failure returns (Profile{},
// false); negative results are never cached.
func (c *Cache) Load(ctx context.Context, rawID string) (Profile, bool) {
	key := digest.Of(rawID)
	sh := c.shardFor(key)

	if p, ok := sh.lru.Get(key); ok {
		return p, true
	}

	p, err := c.loader.LoadProfile(ctx, rawID)
	if err != nil {
		slog.Warn("profile load failed", "component", "profile", "err", err)
		return Profile{}, false
	}

	sh.lru.Add(key, p)
	return p, true
}
