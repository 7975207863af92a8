package queries

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"battlevoter/contexts/live-events/battle-voting/adapters/memory"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	"battlevoter/contexts/live-events/battle-voting/ports"
	"battlevoter/internal/platform/messaging"
)

type brokenCache struct {
	invalidations int
}

func (c *brokenCache) Get(context.Context, string) (entities.TallySnapshot, bool, error) {
	return entities.TallySnapshot{}, false, errors.New("cache offline")
}

func (c *brokenCache) Set(context.Context, entities.TallySnapshot, time.Duration) error {
	return errors.New("cache offline")
}

func (c *brokenCache) Invalidate(context.Context, string, time.Time) error {
	c.invalidations++
	return errors.New("cache offline")
}

func seedLedger(t *testing.T, store *memory.Store, votes map[string]entities.Choice) {
	t.Helper()
	for device, choice := range votes {
		if _, _, err := store.RecordVote(context.Background(), entities.VoteRecord{
			VoteID:            device,
			ContestID:         "contest-1",
			DeviceFingerprint: device,
			Choice:            choice,
			CreatedAt:         time.Now().UTC(),
		}); err != nil {
			t.Fatalf("seed vote: %v", err)
		}
	}
}

func TestGetTallyFallsThroughBrokenCache(t *testing.T) {
	store := memory.NewStore(nil)
	seedLedger(t, store, map[string]entities.Choice{
		"d1": entities.ChoiceA,
		"d2": entities.ChoiceB,
		"d3": entities.ChoiceB,
	})
	aggregator := TallyAggregator{Ledger: store, Cache: &brokenCache{}}

	snapshot, err := aggregator.GetTally(context.Background(), "contest-1")
	if err != nil {
		t.Fatalf("expected recompute despite cache failure, got %v", err)
	}
	if snapshot.Count(entities.ChoiceA) != 1 || snapshot.Count(entities.ChoiceB) != 2 {
		t.Fatalf("unexpected counts %v", snapshot.Counts)
	}
}

func TestRefreshRecomputesAndInvalidates(t *testing.T) {
	store := memory.NewStore(nil)
	cache := memory.NewTallyCache(store)
	aggregator := TallyAggregator{Ledger: store, Cache: cache, CacheTTL: time.Minute}
	ctx := context.Background()

	seedLedger(t, store, map[string]entities.Choice{"d1": entities.ChoiceA})
	if _, err := aggregator.GetTally(ctx, "contest-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, hit, _ := cache.Get(ctx, "contest-1"); !hit {
		t.Fatalf("expected read to populate cache")
	}

	seedLedger(t, store, map[string]entities.Choice{"d2": entities.ChoiceA})
	stale, _ := aggregator.GetTally(ctx, "contest-1")
	if stale.Count(entities.ChoiceA) != 1 {
		t.Fatalf("expected cached value until invalidation, got %v", stale.Counts)
	}

	fresh, err := aggregator.Refresh(ctx, "contest-1")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if fresh.Count(entities.ChoiceA) != 2 {
		t.Fatalf("expected refresh to read the ledger, got %v", fresh.Counts)
	}
	if _, hit, _ := cache.Get(ctx, "contest-1"); hit {
		t.Fatalf("expected refresh to invalidate the cache")
	}
}

func TestCachedTallyExpires(t *testing.T) {
	store := memory.NewStore(nil)
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	store.SetNow(func() time.Time { return now })
	cache := memory.NewTallyCache(store)
	aggregator := TallyAggregator{Ledger: store, Cache: cache, Clock: store, CacheTTL: time.Minute}
	ctx := context.Background()

	seedLedger(t, store, map[string]entities.Choice{"d1": entities.ChoiceA})
	if _, err := aggregator.GetTally(ctx, "contest-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	seedLedger(t, store, map[string]entities.Choice{"d2": entities.ChoiceB})

	now = now.Add(time.Minute)
	snapshot, err := aggregator.GetTally(ctx, "contest-1")
	if err != nil {
		t.Fatalf("get tally: %v", err)
	}
	if snapshot.Total() != 2 {
		t.Fatalf("expected ttl expiry to force recompute, got %v", snapshot.Counts)
	}
}

func TestRefreshWithBrokenCacheStillReturnsSnapshot(t *testing.T) {
	store := memory.NewStore(nil)
	cache := &brokenCache{}
	seedLedger(t, store, map[string]entities.Choice{"d1": entities.ChoiceReplica})

	snapshot, err := TallyAggregator{Ledger: store, Cache: cache}.Refresh(context.Background(), "contest-1")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if snapshot.Count(entities.ChoiceReplica) != 1 || cache.invalidations != 1 {
		t.Fatalf("unexpected refresh outcome: counts=%v invalidations=%d", snapshot.Counts, cache.invalidations)
	}
}

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// gatedLedger holds its first CountByChoice call until release is closed and
// answers it with first; every later call answers with latest at once.
type gatedLedger struct {
	ports.VoteLedger

	first   map[entities.Choice]int
	latest  map[entities.Choice]int
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newGatedLedger(first, latest map[entities.Choice]int) *gatedLedger {
	return &gatedLedger{
		first:   first,
		latest:  latest,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (l *gatedLedger) CountByChoice(context.Context, string) (map[entities.Choice]int, error) {
	l.mu.Lock()
	l.calls++
	call := l.calls
	l.mu.Unlock()
	if call == 1 {
		close(l.entered)
		<-l.release
		return l.first, nil
	}
	return l.latest, nil
}

func TestDelayedRecomputeCannotOverwriteFresherTally(t *testing.T) {
	ledger := newGatedLedger(
		map[entities.Choice]int{entities.ChoiceA: 1},
		map[entities.Choice]int{entities.ChoiceA: 2},
	)
	clock := &steppingClock{now: time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC), step: time.Millisecond}
	aggregator := TallyAggregator{Ledger: ledger, Clock: clock}
	hub := messaging.NewHub(8, nil)
	t.Cleanup(func() { _ = hub.Close() })
	sub, err := hub.Subscribe("contest-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ctx := context.Background()

	delayed := make(chan entities.TallySnapshot, 1)
	go func() {
		snapshot, err := aggregator.Refresh(ctx, "contest-1")
		if err != nil {
			t.Errorf("delayed refresh: %v", err)
		}
		delayed <- snapshot
	}()
	<-ledger.entered

	fresh, err := aggregator.Refresh(ctx, "contest-1")
	if err != nil {
		t.Fatalf("fresh refresh: %v", err)
	}
	_ = hub.Publish(ctx, "contest-1", fresh)

	close(ledger.release)
	stale := <-delayed
	_ = hub.Publish(ctx, "contest-1", stale)

	if !stale.OlderThan(fresh) {
		t.Fatalf("expected delayed recompute stamped before the fresh one: stale=%s fresh=%s", stale.ComputedAt, fresh.ComputedAt)
	}

	var last entities.TallySnapshot
	for drained := false; !drained; {
		select {
		case snapshot := <-sub.Updates():
			last = snapshot
		default:
			drained = true
		}
	}
	if last.Count(entities.ChoiceA) != 2 {
		t.Fatalf("expected viewers to end on A=2, got %v", last.Counts)
	}
}

func TestStaleReadCannotRepopulateCacheAfterRefresh(t *testing.T) {
	ledger := newGatedLedger(
		map[entities.Choice]int{entities.ChoiceA: 1},
		map[entities.Choice]int{entities.ChoiceA: 2},
	)
	clock := &steppingClock{now: time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC), step: time.Millisecond}
	cache := memory.NewTallyCache(nil)
	aggregator := TallyAggregator{Ledger: ledger, Cache: cache, Clock: clock, CacheTTL: time.Hour}
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := aggregator.GetTally(ctx, "contest-1"); err != nil {
			t.Errorf("slow read: %v", err)
		}
	}()
	<-ledger.entered

	if _, err := aggregator.Refresh(ctx, "contest-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	close(ledger.release)
	<-done

	if cached, hit, _ := cache.Get(ctx, "contest-1"); hit {
		t.Fatalf("expected slow read not to be cached, got %v", cached.Counts)
	}
	snapshot, err := aggregator.GetTally(ctx, "contest-1")
	if err != nil {
		t.Fatalf("get tally: %v", err)
	}
	if snapshot.Count(entities.ChoiceA) != 2 {
		t.Fatalf("expected current count A=2, got %v", snapshot.Counts)
	}
	if cached, hit, _ := cache.Get(ctx, "contest-1"); !hit || cached.Count(entities.ChoiceA) != 2 {
		t.Fatalf("expected current count cached, hit=%v counts=%v", hit, cached.Counts)
	}
}
