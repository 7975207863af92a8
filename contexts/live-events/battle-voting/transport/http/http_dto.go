package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SubmitVoteRequest struct {
	ContestID         string `json:"contest_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
	Choice            string `json:"choice"`
}

type TallyResponse struct {
	ContestID  string    `json:"contest_id"`
	A          int       `json:"A"`
	B          int       `json:"B"`
	Replica    int       `json:"REPLICA"`
	Total      int       `json:"total"`
	ComputedAt time.Time `json:"computed_at"`
}

type SubmitVoteResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	VoteID    string         `json:"vote_id"`
	WasUpdate bool           `json:"was_update"`
	Tally     *TallyResponse `json:"tally,omitempty"`
}

type ContestResponse struct {
	ContestID    string    `json:"contest_id"`
	EventID      string    `json:"event_id"`
	ParticipantA string    `json:"participant_a"`
	ParticipantB string    `json:"participant_b"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Status       string    `json:"status"`
}
