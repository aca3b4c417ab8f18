package sonos

import (
	"context"
	"sync"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
)

// ZoneGroupCache caches the household zone group state with a TTL.
// Every device of a household reports the same state, so one cache is shared
// by all devices and a topology event invalidates it for everyone.
type ZoneGroupCache struct {
	mu       sync.Mutex
	state    *soap.ZoneGroupState
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewZoneGroupCache creates a new cache with the specified TTL.
func NewZoneGroupCache(ttl time.Duration) *ZoneGroupCache {
	return &ZoneGroupCache{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached zone group state if it exists and is still fresh.
func (c *ZoneGroupCache) Get() *soap.ZoneGroupState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil || c.now().Sub(c.cachedAt) > c.ttl {
		return nil
	}
	return c.state
}

// Set stores the zone group state in the cache.
func (c *ZoneGroupCache) Set(state *soap.ZoneGroupState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
	c.cachedAt = c.now()
}

// Invalidate clears the cache. Called when a topology event arrives.
func (c *ZoneGroupCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = nil
	c.cachedAt = time.Time{}
}

// GetOrFetch returns cached state if fresh, otherwise calls fetch and caches its result.
func (c *ZoneGroupCache) GetOrFetch(ctx context.Context, fetch func(context.Context) (soap.ZoneGroupState, error)) (*soap.ZoneGroupState, error) {
	if state := c.Get(); state != nil {
		return state, nil
	}

	state, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(&state)
	return &state, nil
}
