package redisadapter

import (
	"encoding/json"
	"time"

	"battlevoter/contexts/live-events/battle-voting/domain/entities"
)

const defaultKeyPrefix = "battlevoter"

type snapshotPayload struct {
	ContestID  string         `json:"contest_id"`
	Counts     map[string]int `json:"counts"`
	ComputedAt time.Time      `json:"computed_at"`
}

func encodeSnapshot(snapshot entities.TallySnapshot) ([]byte, error) {
	counts := make(map[string]int, len(snapshot.Counts))
	for choice, count := range snapshot.Counts {
		counts[string(choice)] = count
	}
	return json.Marshal(snapshotPayload{
		ContestID:  snapshot.ContestID,
		Counts:     counts,
		ComputedAt: snapshot.ComputedAt.UTC(),
	})
}

func decodeSnapshot(raw []byte) (entities.TallySnapshot, error) {
	var payload snapshotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return entities.TallySnapshot{}, err
	}
	counts := make(map[entities.Choice]int, len(payload.Counts))
	for choice, count := range payload.Counts {
		counts[entities.Choice(choice)] = count
	}
	return entities.NewTallySnapshot(payload.ContestID, counts, payload.ComputedAt), nil
}

func resolvePrefix(prefix string) string {
	if prefix == "" {
		return defaultKeyPrefix
	}
	return prefix
}
