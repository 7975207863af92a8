package livefeed

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "battlevoter/contexts/live-events/battle-voting/application"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	"battlevoter/contexts/live-events/battle-voting/ports"
)

type EventKind string

const (
	EventSnapshot  EventKind = "snapshot"
	EventUpdate    EventKind = "update"
	EventHeartbeat EventKind = "heartbeat"
)

// Event is one frame written to a viewer. Tally is zero for heartbeats.
type Event struct {
	Kind  EventKind
	Tally entities.TallySnapshot
}

// EmitFunc writes one event to the viewer's transport. Returning an error
// ends the stream.
type EmitFunc func(Event) error

type TallyReader interface {
	GetTally(ctx context.Context, contestID string) (entities.TallySnapshot, error)
}

// Feed drains a hub subscription into one viewer connection.
type Feed struct {
	Contests  ports.ContestLookup
	Tallies   TallyReader
	Hub       ports.TallySubscriber
	Heartbeat time.Duration
	Logger    *slog.Logger
}

// Stream sends the current snapshot, then every hub update, until ctx is
// cancelled, emit fails, or the hub shuts down. The subscription is taken
// before the snapshot is read so no update between the two is lost, and it is
// released before Stream returns.
func (f Feed) Stream(ctx context.Context, contestID string, emit EmitFunc) error {
	logger := application.ResolveLogger(f.Logger)
	contestID = strings.TrimSpace(contestID)

	if _, err := f.Contests.GetContest(ctx, contestID); err != nil {
		return err
	}

	sub, err := f.Hub.Subscribe(contestID)
	if err != nil {
		return err
	}
	defer sub.Close()

	initial, err := f.Tallies.GetTally(ctx, contestID)
	if err != nil {
		return err
	}
	if err := emit(Event{Kind: EventSnapshot, Tally: initial}); err != nil {
		return err
	}
	logger.Info("live feed attached",
		"event", "livefeed_attached",
		"module", "live-events/battle-voting",
		"layer", "application",
		"contest_id", contestID,
	)

	var heartbeat <-chan time.Time
	if f.Heartbeat > 0 {
		ticker := time.NewTicker(f.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	updates := sub.Updates()
	for {
		select {
		case <-ctx.Done():
			logger.Info("live feed detached",
				"event", "livefeed_detached",
				"module", "live-events/battle-voting",
				"layer", "application",
				"contest_id", contestID,
			)
			return nil
		case snapshot, ok := <-updates:
			if !ok {
				return nil
			}
			if snapshot.OlderThan(initial) {
				continue
			}
			if err := emit(Event{Kind: EventUpdate, Tally: snapshot}); err != nil {
				return err
			}
		case <-heartbeat:
			if err := emit(Event{Kind: EventHeartbeat}); err != nil {
				return err
			}
		}
	}
}
