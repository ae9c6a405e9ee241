package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"budgets/internal/core"
)

// OverviewCache memoizes dashboard overviews per user. Concurrent misses for
// the same user share one load, and a load that races with Invalidate is
// not stored.
type OverviewCache struct {
	lru   *LRUCache[core.Overview]
	group singleflight.Group

	mu      sync.Mutex
	version map[string]uint64
}

func NewOverviewCache(maxSize int, ttl time.Duration) *OverviewCache {
	return &OverviewCache{
		lru:     NewLRUCache[core.Overview](maxSize, ttl),
		version: make(map[string]uint64),
	}
}

// Load returns the cached overview for userID or computes it with load.
func (c *OverviewCache) Load(ctx context.Context, userID string, load func(context.Context) (core.Overview, error)) (core.Overview, error) {
	if ov, ok := c.lru.Get(userID); ok {
		return ov, nil
	}

	// The shared load outlives any single caller; a caller that gives up
	// leaves it running for the others.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(userID, func() (any, error) {
		before := c.currentVersion(userID)
		ov, err := load(loadCtx)
		if err != nil {
			return core.Overview{}, err
		}
		c.mu.Lock()
		if c.version[userID] == before {
			c.lru.Set(userID, ov)
		}
		c.mu.Unlock()
		return ov, nil
	})

	select {
	case <-ctx.Done():
		return core.Overview{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.Overview{}, res.Err
		}
		return res.Val.(core.Overview), nil
	}
}

// Invalidate drops the user's entry and detaches any in-flight load.
func (c *OverviewCache) Invalidate(userID string) {
	c.mu.Lock()
	c.version[userID]++
	c.lru.Delete(userID)
	c.mu.Unlock()
	c.group.Forget(userID)
}

func (c *OverviewCache) currentVersion(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version[userID]
}

func (c *OverviewCache) CleanExpired() int { return c.lru.CleanExpired() }

func (c *OverviewCache) Size() int { return c.lru.Size() }
