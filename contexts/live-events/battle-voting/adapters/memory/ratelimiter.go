package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"battlevoter/contexts/live-events/battle-voting/ports"
)

const pruneEvery = 1024

type rateWindow struct {
	count     int
	expiresAt time.Time
}

// RateLimiter is a fixed-window counter per source address held in process
// memory. Expired windows are replaced on next use and swept opportunistically.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	limit   int
	window  time.Duration
	clock   ports.Clock
	calls   int
}

func NewRateLimiter(limit int, window time.Duration, clock ports.Clock) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]rateWindow),
		limit:   limit,
		window:  window,
		clock:   clock,
	}
}

func (l *RateLimiter) Admit(_ context.Context, sourceAddress string) (bool, error) {
	sourceAddress = strings.TrimSpace(sourceAddress)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%pruneEvery == 0 {
		for key, item := range l.windows {
			if !now.Before(item.expiresAt) {
				delete(l.windows, key)
			}
		}
	}

	current, ok := l.windows[sourceAddress]
	if !ok || !now.Before(current.expiresAt) {
		current = rateWindow{expiresAt: now.Add(l.window)}
	}
	current.count++
	l.windows[sourceAddress] = current
	return current.count <= l.limit, nil
}

func (l *RateLimiter) now() time.Time {
	if l.clock != nil {
		return l.clock.Now().UTC()
	}
	return time.Now().UTC()
}

var _ ports.RateLimiter = (*RateLimiter)(nil)
