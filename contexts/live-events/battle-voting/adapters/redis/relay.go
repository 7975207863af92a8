package redisadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	"battlevoter/contexts/live-events/battle-voting/ports"

	"github.com/redis/go-redis/v9"
)

// Relay carries tally snapshots between replicas. Publish sends to Redis;
// every replica, this one included, receives the message on its pattern
// subscription and republishes it into its local hub.
type Relay struct {
	client redis.UniversalClient
	local  ports.TallyPublisher
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRelay(client redis.UniversalClient, local ports.TallyPublisher, prefix string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		client: client,
		local:  local,
		prefix: resolvePrefix(prefix),
		logger: logger,
	}
}

// Publish broadcasts to every replica. If Redis rejects the message the
// snapshot is still delivered to this replica's viewers and the error is
// returned for logging.
func (r *Relay) Publish(ctx context.Context, contestID string, snapshot entities.TallySnapshot) error {
	raw, err := encodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("encode tally: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(contestID), raw).Err(); err != nil {
		if localErr := r.local.Publish(ctx, contestID, snapshot); localErr != nil {
			return errors.Join(fmt.Errorf("redis publish tally: %w", err), localErr)
		}
		return fmt.Errorf("redis publish tally: %w", err)
	}
	return nil
}

// Start subscribes and returns once Redis has confirmed the subscription, so
// no message published after Start returns is missed.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return errors.New("relay already started")
	}

	pubsub := r.client.PSubscribe(ctx, r.prefix+":tally-updates:*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	r.pubsub = pubsub
	r.done = make(chan struct{})
	go r.forward(pubsub.Channel(), r.done)

	r.logger.Info("tally relay subscribed",
		"event", "relay_started",
		"module", "live-events/battle-voting",
		"layer", "adapter",
	)
	return nil
}

// Run starts the relay and keeps it alive until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return r.Close()
}

func (r *Relay) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub, r.done = nil, nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

func (r *Relay) forward(messages <-chan *redis.Message, done chan<- struct{}) {
	defer close(done)
	for msg := range messages {
		snapshot, err := decodeSnapshot([]byte(msg.Payload))
		if err != nil {
			r.logger.Warn("discarding undecodable tally message",
				"event", "relay_decode_failed",
				"module", "live-events/battle-voting",
				"layer", "adapter",
				"channel", msg.Channel,
				"error", err.Error(),
			)
			continue
		}
		if err := r.local.Publish(context.Background(), snapshot.ContestID, snapshot); err != nil {
			r.logger.Warn("local fan-out of relayed tally failed",
				"event", "relay_local_publish_failed",
				"module", "live-events/battle-voting",
				"layer", "adapter",
				"contest_id", snapshot.ContestID,
				"error", err.Error(),
			)
		}
	}
}

func (r *Relay) channel(contestID string) string {
	return r.prefix + ":tally-updates:" + strings.TrimSpace(contestID)
}

var _ ports.TallyPublisher = (*Relay)(nil)
