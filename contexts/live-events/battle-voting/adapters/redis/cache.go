package redisadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	"battlevoter/contexts/live-events/battle-voting/ports"

	"github.com/redis/go-redis/v9"
)

// invalidationRetention is how long an Invalidate keeps refusing snapshots
// computed before it.
const invalidationRetention = time.Hour

// storeIfCurrent writes the snapshot hash unless the cached snapshot or the
// invalidation floor is newer. Stamps are zero-padded nanoseconds, so string
// comparison orders them.
var storeIfCurrent = redis.NewScript(`
local floor = redis.call("GET", KEYS[2])
if floor and floor > ARGV[2] then
  return 0
end
local stored = redis.call("HGET", KEYS[1], "at")
if stored and stored > ARGV[2] then
  return 0
end
redis.call("HSET", KEYS[1], "snapshot", ARGV[1], "at", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// invalidateAsOf drops the snapshot and raises the floor to asOf.
var invalidateAsOf = redis.NewScript(`
redis.call("DEL", KEYS[1])
local floor = redis.call("GET", KEYS[2])
if floor and floor > ARGV[1] then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
else
  redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
end
return 1
`)

// TallyCache stores each snapshot as a hash under <prefix>:tally:{<contest_id>}
// and the invalidation floor under <prefix>:tally-floor:{<contest_id>}. The
// braces keep both keys in one cluster slot.
type TallyCache struct {
	client redis.UniversalClient
	prefix string
}

func NewTallyCache(client redis.UniversalClient, prefix string) *TallyCache {
	return &TallyCache{client: client, prefix: resolvePrefix(prefix)}
}

func (c *TallyCache) Get(ctx context.Context, contestID string) (entities.TallySnapshot, bool, error) {
	raw, err := c.client.HGet(ctx, c.key(contestID), "snapshot").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entities.TallySnapshot{}, false, nil
		}
		return entities.TallySnapshot{}, false, fmt.Errorf("redis get tally: %w", err)
	}
	snapshot, err := decodeSnapshot(raw)
	if err != nil {
		return entities.TallySnapshot{}, false, fmt.Errorf("decode cached tally: %w", err)
	}
	return snapshot, true, nil
}

func (c *TallyCache) Set(ctx context.Context, snapshot entities.TallySnapshot, ttl time.Duration) error {
	raw, err := encodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("encode tally: %w", err)
	}
	keys := []string{c.key(snapshot.ContestID), c.floorKey(snapshot.ContestID)}
	if err := storeIfCurrent.Run(ctx, c.client, keys, raw, stamp(snapshot.ComputedAt), ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set tally: %w", err)
	}
	return nil
}

func (c *TallyCache) Invalidate(ctx context.Context, contestID string, asOf time.Time) error {
	keys := []string{c.key(contestID), c.floorKey(contestID)}
	if err := invalidateAsOf.Run(ctx, c.client, keys, stamp(asOf), invalidationRetention.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis invalidate tally: %w", err)
	}
	return nil
}

func (c *TallyCache) key(contestID string) string {
	return c.prefix + ":tally:{" + strings.TrimSpace(contestID) + "}"
}

func (c *TallyCache) floorKey(contestID string) string {
	return c.prefix + ":tally-floor:{" + strings.TrimSpace(contestID) + "}"
}

func stamp(at time.Time) string {
	return fmt.Sprintf("%020d", at.UTC().UnixNano())
}

var _ ports.TallyCache = (*TallyCache)(nil)
