package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mesh-intelligence/backlog/internal/projection"
)

type dashboardLoader func(ctx context.Context, projectID string) (*projection.Dashboard, error)

type cachedDashboard struct {
	dashboard *projection.Dashboard
	loadedAt  time.Time
}

// dashboardCache provides a per-project TTL cache of dashboards, with
// singleflight coalescing of concurrent loads. Errors are not cached.
type dashboardCache struct {
	mu      sync.RWMutex
	entries map[string]cachedDashboard
	ttl     time.Duration
	group   singleflight.Group
	load    dashboardLoader
	now     func() time.Time
}

// newDashboardCache creates a dashboard cache over load with the given TTL.
func newDashboardCache(load dashboardLoader, ttl time.Duration) *dashboardCache {
	return &dashboardCache{
		entries: make(map[string]cachedDashboard),
		ttl:     ttl,
		load:    load,
		now:     time.Now,
	}
}

// Get returns the cached dashboard for projectID or loads it.
func (c *dashboardCache) Get(ctx context.Context, projectID string) (*projection.Dashboard, error) {
	if d, ok := c.cached(projectID); ok {
		return d, nil
	}

	result, err, _ := c.group.Do(projectID, func() (any, error) {
		if d, ok := c.cached(projectID); ok {
			return d, nil
		}
		// Detached: the result is shared by every waiter.
		d, err := c.load(context.WithoutCancel(ctx), projectID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[projectID] = cachedDashboard{dashboard: d, loadedAt: c.now()}
		c.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*projection.Dashboard), nil
}

func (c *dashboardCache) cached(projectID string) (*projection.Dashboard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[projectID]
	if !ok || c.now().Sub(e.loadedAt) >= c.ttl {
		return nil, false
	}
	return e.dashboard, true
}
