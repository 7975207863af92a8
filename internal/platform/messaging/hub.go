package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	"battlevoter/contexts/live-events/battle-voting/ports"
)

const DefaultSubscriberBuffer = 16

var ErrHubClosed = errors.New("broadcast hub is closed")

// Hub fans tally snapshots out to live subscribers, one logical channel per
// contest. Publish never blocks on a subscriber: each subscription has a
// bounded buffer and a full buffer loses its oldest snapshot.
type Hub struct {
	mu            sync.Mutex
	subscribers   map[string]map[*Subscription]struct{}
	lastPublished map[string]time.Time
	bufferSize    int
	closed        bool
	dropped       atomic.Uint64
	logger        *slog.Logger
}

func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers:   make(map[string]map[*Subscription]struct{}),
		lastPublished: make(map[string]time.Time),
		bufferSize:    bufferSize,
		logger:        logger,
	}
}

// Publish delivers snapshot to every current subscriber of contestID. A
// snapshot computed before the last one published for the contest is
// discarded so viewers never see counts move backwards.
func (h *Hub) Publish(_ context.Context, contestID string, snapshot entities.TallySnapshot) error {
	contestID = strings.TrimSpace(contestID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if last, ok := h.lastPublished[contestID]; ok && snapshot.ComputedAt.Before(last) {
		h.logger.Debug("discarding stale tally snapshot",
			"event", "hub_publish_stale",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"contest_id", contestID,
		)
		return nil
	}
	h.lastPublished[contestID] = snapshot.ComputedAt

	delivered := 0
	for sub := range h.subscribers[contestID] {
		if sub.deliver(snapshot) {
			h.dropped.Add(1)
			h.logger.Debug("dropping oldest update for slow subscriber",
				"event", "hub_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"contest_id", contestID,
			)
		}
		delivered++
	}

	h.logger.Debug("tally snapshot published",
		"event", "hub_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"contest_id", contestID,
		"subscribers", delivered,
	)
	return nil
}

// Subscribe attaches a new subscriber to contestID. The caller must Close
// the subscription when done.
func (h *Hub) Subscribe(contestID string) (ports.Subscription, error) {
	contestID = strings.TrimSpace(contestID)
	sub := &Subscription{
		hub:       h,
		contestID: contestID,
		ch:        make(chan entities.TallySnapshot, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	set, ok := h.subscribers[contestID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subscribers[contestID] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// SubscriberCount reports how many subscriptions are attached to contestID.
func (h *Hub) SubscriberCount(contestID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[strings.TrimSpace(contestID)])
}

// Dropped reports how many snapshots were evicted from full buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close detaches every subscriber, closing their channels. Later Publish and
// Subscribe calls return ErrHubClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for contestID, set := range h.subscribers {
		for sub := range set {
			sub.shutdown()
		}
		delete(h.subscribers, contestID)
	}
	h.logger.Info("broadcast hub closed",
		"event", "hub_closed",
		"module", "internal/platform/messaging",
		"layer", "platform",
	)
	return nil
}

func (h *Hub) removeSubscriber(target *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subscribers[target.contestID]
	if set == nil {
		return
	}
	delete(set, target)
	if len(set) == 0 {
		delete(h.subscribers, target.contestID)
		delete(h.lastPublished, target.contestID)
	}
}

// Subscription is one viewer's bounded queue of snapshots.
type Subscription struct {
	hub       *Hub
	contestID string

	mu     sync.Mutex
	ch     chan entities.TallySnapshot
	closed bool
}

func (s *Subscription) Updates() <-chan entities.TallySnapshot {
	return s.ch
}

// Close detaches the subscription and closes its channel. Safe to call more
// than once and concurrently with Publish.
func (s *Subscription) Close() {
	s.hub.removeSubscriber(s)
	s.shutdown()
}

// deliver enqueues snapshot without blocking, evicting the oldest buffered
// snapshot when the buffer is full. It reports whether an eviction happened.
func (s *Subscription) deliver(snapshot entities.TallySnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	evicted := false
	for {
		select {
		case s.ch <- snapshot:
			return evicted
		default:
		}
		select {
		case <-s.ch:
			evicted = true
		default:
		}
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

var _ ports.TallyPublisher = (*Hub)(nil)
var _ ports.TallySubscriber = (*Hub)(nil)
