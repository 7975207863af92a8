package entities

import (
	"strings"
	"time"
)

type Choice string

const (
	ChoiceA       Choice = "A"
	ChoiceB       Choice = "B"
	ChoiceReplica Choice = "REPLICA"
)

// Choices lists the closed set of ballot options in display order.
func Choices() []Choice {
	return []Choice{ChoiceA, ChoiceB, ChoiceReplica}
}

func (c Choice) Valid() bool {
	switch c {
	case ChoiceA, ChoiceB, ChoiceReplica:
		return true
	default:
		return false
	}
}

// ParseChoice accepts the wire spelling case-insensitively.
func ParseChoice(raw string) (Choice, bool) {
	choice := Choice(strings.ToUpper(strings.TrimSpace(raw)))
	return choice, choice.Valid()
}

// VoteRecord is the single current ballot of one device in one contest.
// (ContestID, DeviceFingerprint) is unique in every ledger implementation.
type VoteRecord struct {
	VoteID            string
	ContestID         string
	DeviceFingerprint string
	Choice            Choice
	SourceAddress     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type DuplicatePolicy string

const (
	// DuplicatePolicyRevote replaces the stored choice of a repeat device.
	DuplicatePolicyRevote DuplicatePolicy = "revote"
	// DuplicatePolicyReject refuses any submission after the first.
	DuplicatePolicyReject DuplicatePolicy = "reject"
)

func (p DuplicatePolicy) Valid() bool {
	return p == DuplicatePolicyRevote || p == DuplicatePolicyReject
}
