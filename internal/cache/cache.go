// Package cache holds the latest normalized snapshot of all Home Assistant
// entities and areas and answers filtered and ranked lookups over it.
//
// The cache keeps two independently swappable immutable snapshots, each
// published through an atomic pointer. Readers load the pointer once and
// operate on a consistent snapshot without locking; the single refresh
// writer builds a complete replacement and swaps it in one store. A failed
// refresh leaves the previous snapshots fully intact.
package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vegardlu/homelab-core/internal/homeassistant"
	"github.com/vegardlu/homelab-core/internal/logging"
)

// DefaultPollInterval is how often the background refresh runs.
const DefaultPollInterval = 5 * time.Second

// entitySnapshot is an immutable point-in-time view of all entities.
// Both the map and the slice are never mutated after publication.
type entitySnapshot struct {
	byID map[string]homeassistant.EnhancedEntityState
	list []homeassistant.EnhancedEntityState
}

// Cache is the entity cache and search engine.
type Cache struct {
	client   homeassistant.Client
	logger   *logging.Logger
	interval time.Duration

	entities atomic.Pointer[entitySnapshot]
	areas    atomic.Pointer[[]string]
}

// New creates an empty cache. Call Refresh once for the synchronous
// bootstrap and Run for the background poll loop.
func New(client homeassistant.Client, logger *logging.Logger, interval time.Duration) *Cache {
	if logger == nil {
		logger = logging.New(logging.LevelInfo)
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	c := &Cache{
		client:   client,
		logger:   logger,
		interval: interval,
	}
	c.entities.Store(&entitySnapshot{byID: map[string]homeassistant.EnhancedEntityState{}})
	empty := []string{}
	c.areas.Store(&empty)
	return c
}

// Refresh fetches the full area and entity lists from the gateway and swaps
// in new snapshots. The area snapshot is always replaced with whatever came
// back; the entity snapshot is only replaced when the new batch is
// non-empty, so a hub outage never wipes served state. Refresh is
// best-effort and never returns an error.
func (c *Cache) Refresh(ctx context.Context) {
	areas := c.client.GetAreas(ctx)
	if areas == nil {
		areas = []string{}
	}
	c.areas.Store(&areas)

	entities := c.client.GetEnhancedEntities(ctx, "", "")
	if len(entities) == 0 {
		c.logger.Warn("Entity refresh returned no entities, keeping previous snapshot")
		return
	}

	snap := &entitySnapshot{
		byID: make(map[string]homeassistant.EnhancedEntityState, len(entities)),
		list: entities,
	}
	for _, e := range entities {
		snap.byID[e.EntityID] = e
	}
	c.entities.Store(snap)
	c.logger.Debug("Cache refreshed", "entities", len(entities), "areas", len(areas))
}

// Run refreshes the cache on a fixed interval until ctx is cancelled.
// The initial synchronous refresh is the caller's responsibility.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Cache refresh loop stopped")
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// Areas returns the current area snapshot.
func (c *Cache) Areas() []string {
	return *c.areas.Load()
}

// All returns all cached entities in snapshot order.
func (c *Cache) All() []homeassistant.EnhancedEntityState {
	return c.entities.Load().list
}

// Get returns the cached entity with the given id.
func (c *Cache) Get(entityID string) (homeassistant.EnhancedEntityState, bool) {
	e, ok := c.entities.Load().byID[entityID]
	return e, ok
}

// Filter returns cached entities matching an optional domain and area.
// The domain matches as an entity_id prefix ("light" matches "light.*").
// The area query is case-insensitive and underscore/space-normalized, and
// matches against either the resolved area name or the raw area id. An
// entity with no area never matches a non-empty area filter.
func (c *Cache) Filter(domain, area string) []homeassistant.EnhancedEntityState {
	snap := c.entities.Load()

	prefix := ""
	if domain != "" {
		prefix = domain + "."
	}
	wantArea := ""
	if area != "" {
		wantArea = homeassistant.NormalizeArea(area)
	}

	var out []homeassistant.EnhancedEntityState
	for _, e := range snap.list {
		if prefix != "" && !strings.HasPrefix(e.EntityID, prefix) {
			continue
		}
		if wantArea != "" {
			matchName := e.Area != "" && homeassistant.NormalizeArea(e.Area) == wantArea
			matchID := e.AreaID != "" && homeassistant.NormalizeArea(e.AreaID) == wantArea
			if !matchName && !matchID {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
