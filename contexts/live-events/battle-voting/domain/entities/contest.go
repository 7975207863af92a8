package entities

import "time"

type ContestStatus string

const (
	ContestStatusScheduled ContestStatus = "scheduled"
	ContestStatusOpen      ContestStatus = "open"
	ContestStatusClosed    ContestStatus = "closed"
)

// Contest is owned by the contest-management collaborator; this context only
// reads it. EventID is the scope every voting credential must be bound to.
type Contest struct {
	ContestID    string
	EventID      string
	ParticipantA string
	ParticipantB string
	StartsAt     time.Time
	EndsAt       time.Time
	Status       ContestStatus
}

func (c Contest) IsOpen() bool {
	return c.Status == ContestStatusOpen
}
