package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	"battlevoter/contexts/live-events/battle-voting/ports"
)

// invalidationRetention is how long an Invalidate keeps refusing snapshots
// computed before it.
const invalidationRetention = time.Hour

type cachedTally struct {
	snapshot  entities.TallySnapshot
	expiresAt time.Time
}

type invalidationFloor struct {
	asOf      time.Time
	expiresAt time.Time
}

// TallyCache is a process-local TTL cache for single-replica deployments.
type TallyCache struct {
	mu      sync.RWMutex
	entries map[string]cachedTally
	floors  map[string]invalidationFloor
	clock   ports.Clock
}

func NewTallyCache(clock ports.Clock) *TallyCache {
	return &TallyCache{
		entries: make(map[string]cachedTally),
		floors:  make(map[string]invalidationFloor),
		clock:   clock,
	}
}

func (c *TallyCache) Get(_ context.Context, contestID string) (entities.TallySnapshot, bool, error) {
	contestID = strings.TrimSpace(contestID)
	c.mu.RLock()
	entry, ok := c.entries[contestID]
	c.mu.RUnlock()
	if !ok {
		return entities.TallySnapshot{}, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[contestID]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, contestID)
		}
		c.mu.Unlock()
		return entities.TallySnapshot{}, false, nil
	}
	return entry.snapshot, true, nil
}

func (c *TallyCache) Set(_ context.Context, snapshot entities.TallySnapshot, ttl time.Duration) error {
	contestID := strings.TrimSpace(snapshot.ContestID)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if floor, ok := c.floors[contestID]; ok {
		if !now.Before(floor.expiresAt) {
			delete(c.floors, contestID)
		} else if snapshot.ComputedAt.Before(floor.asOf) {
			return nil
		}
	}
	if current, ok := c.entries[contestID]; ok && now.Before(current.expiresAt) &&
		current.snapshot.ComputedAt.After(snapshot.ComputedAt) {
		return nil
	}
	c.entries[contestID] = cachedTally{
		snapshot:  snapshot,
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (c *TallyCache) Invalidate(_ context.Context, contestID string, asOf time.Time) error {
	contestID = strings.TrimSpace(contestID)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, contestID)
	floor := invalidationFloor{asOf: asOf, expiresAt: now.Add(invalidationRetention)}
	if current, ok := c.floors[contestID]; ok && now.Before(current.expiresAt) && current.asOf.After(asOf) {
		floor.asOf = current.asOf
	}
	c.floors[contestID] = floor
	return nil
}

func (c *TallyCache) now() time.Time {
	if c.clock != nil {
		return c.clock.Now().UTC()
	}
	return time.Now().UTC()
}

var _ ports.TallyCache = (*TallyCache)(nil)
