package queries

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "battlevoter/contexts/live-events/battle-voting/application"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	domainerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	"battlevoter/contexts/live-events/battle-voting/ports"
)

const defaultTallyCacheTTL = time.Hour

// TallyAggregator serves per-contest tallies cache-first. The ledger is the
// only source of counts; the cache is a latency optimisation and may be nil.
type TallyAggregator struct {
	Ledger   ports.VoteLedger
	Cache    ports.TallyCache
	Clock    ports.Clock
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// GetTally returns the cached snapshot when present and otherwise recomputes
// from the ledger and repopulates the cache. Cache errors fall through.
func (a TallyAggregator) GetTally(ctx context.Context, contestID string) (entities.TallySnapshot, error) {
	contestID = strings.TrimSpace(contestID)
	if contestID == "" {
		return entities.TallySnapshot{}, domainerrors.ErrInvalidVoteInput
	}
	logger := application.ResolveLogger(a.Logger)

	if a.Cache != nil {
		snapshot, hit, err := a.Cache.Get(ctx, contestID)
		switch {
		case err != nil:
			logger.Warn("tally cache read failed, recomputing",
				"event", "tally_cache_get_failed",
				"module", "live-events/battle-voting",
				"layer", "application",
				"contest_id", contestID,
				"error", err.Error(),
			)
		case hit:
			return snapshot, nil
		}
	}

	snapshot, err := a.recompute(ctx, contestID)
	if err != nil {
		return entities.TallySnapshot{}, err
	}

	if a.Cache != nil {
		if err := a.Cache.Set(ctx, snapshot, a.cacheTTL()); err != nil {
			logger.Warn("tally cache write failed",
				"event", "tally_cache_set_failed",
				"module", "live-events/battle-voting",
				"layer", "application",
				"contest_id", contestID,
				"error", err.Error(),
			)
		}
	}
	return snapshot, nil
}

// Refresh is the write-path hook: it recomputes from the ledger, which must
// already hold the committed vote, and then drops the cached entry as of the
// recompute stamp so reads that started earlier cannot cache their counts.
func (a TallyAggregator) Refresh(ctx context.Context, contestID string) (entities.TallySnapshot, error) {
	contestID = strings.TrimSpace(contestID)
	snapshot, err := a.recompute(ctx, contestID)
	if err != nil {
		a.invalidate(ctx, contestID, a.now())
		return entities.TallySnapshot{}, err
	}
	a.invalidate(ctx, contestID, snapshot.ComputedAt)
	return snapshot, nil
}

// Invalidate drops the cached snapshot. Failures are logged only; the cache
// TTL bounds how long a missed invalidation can serve stale counts.
func (a TallyAggregator) Invalidate(ctx context.Context, contestID string) {
	a.invalidate(ctx, strings.TrimSpace(contestID), a.now())
}

func (a TallyAggregator) invalidate(ctx context.Context, contestID string, asOf time.Time) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Invalidate(ctx, contestID, asOf); err != nil {
		application.ResolveLogger(a.Logger).Warn("tally cache invalidation failed",
			"event", "tally_cache_invalidate_failed",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", contestID,
			"error", err.Error(),
		)
	}
}

// recompute stamps the snapshot before scanning, so a snapshot stamped t
// counts at least every vote committed before t.
func (a TallyAggregator) recompute(ctx context.Context, contestID string) (entities.TallySnapshot, error) {
	computedAt := a.now()
	counts, err := a.Ledger.CountByChoice(ctx, contestID)
	if err != nil {
		application.ResolveLogger(a.Logger).Error("tally recompute failed",
			"event", "tally_recompute_failed",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", contestID,
			"error", err.Error(),
		)
		return entities.TallySnapshot{}, err
	}
	return entities.NewTallySnapshot(contestID, counts, computedAt), nil
}

func (a TallyAggregator) cacheTTL() time.Duration {
	if a.CacheTTL <= 0 {
		return defaultTallyCacheTTL
	}
	return a.CacheTTL
}

func (a TallyAggregator) now() time.Time {
	if a.Clock != nil {
		return a.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
