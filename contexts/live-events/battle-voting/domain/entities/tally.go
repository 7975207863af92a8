package entities

import "time"

// TallySnapshot is a derived, recomputable count of current votes per choice.
type TallySnapshot struct {
	ContestID  string
	Counts     map[Choice]int
	ComputedAt time.Time
}

// NewTallySnapshot copies counts and zero-fills every known choice so that
// consumers never have to special-case a missing key.
func NewTallySnapshot(contestID string, counts map[Choice]int, computedAt time.Time) TallySnapshot {
	filled := make(map[Choice]int, len(Choices()))
	for _, choice := range Choices() {
		filled[choice] = counts[choice]
	}
	return TallySnapshot{
		ContestID:  contestID,
		Counts:     filled,
		ComputedAt: computedAt.UTC(),
	}
}

func (s TallySnapshot) Count(choice Choice) int {
	return s.Counts[choice]
}

func (s TallySnapshot) Total() int {
	total := 0
	for _, count := range s.Counts {
		total += count
	}
	return total
}

// OlderThan reports whether s was computed strictly before other.
func (s TallySnapshot) OlderThan(other TallySnapshot) bool {
	return s.ComputedAt.Before(other.ComputedAt)
}
