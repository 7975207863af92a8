package redisadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"battlevoter/contexts/live-events/battle-voting/ports"

	"github.com/redis/go-redis/v9"
)

// fixedWindow increments the counter and, for the request that opened the
// window, sets its expiry. Running both in one script keeps every counter
// bounded by a TTL.
var fixedWindow = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RateLimiter is a fixed-window counter shared by every replica.
type RateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: resolvePrefix(prefix),
		limit:  limit,
		window: window,
	}
}

func (l *RateLimiter) Admit(ctx context.Context, sourceAddress string) (bool, error) {
	key := l.prefix + ":ratelimit:" + strings.TrimSpace(sourceAddress)
	count, err := fixedWindow.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return count <= int64(l.limit), nil
}

var _ ports.RateLimiter = (*RateLimiter)(nil)
