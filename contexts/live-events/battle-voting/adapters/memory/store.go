package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	domainerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	"battlevoter/contexts/live-events/battle-voting/ports"

	"github.com/google/uuid"
)

type voteKey struct {
	contestID string
	device    string
}

// Store is an in-process ledger and contest directory. One mutex guards
// every map, which makes each ledger write a single atomic step.
type Store struct {
	mu sync.RWMutex

	votes    map[voteKey]entities.VoteRecord
	contests map[string]entities.Contest
	now      func() time.Time
}

func NewStore(seed []entities.Contest) *Store {
	contests := make(map[string]entities.Contest, len(seed))
	for _, contest := range seed {
		contests[strings.TrimSpace(contest.ContestID)] = contest
	}
	return &Store{
		votes:    make(map[voteKey]entities.VoteRecord),
		contests: contests,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) SetContest(contest entities.Contest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contest.ContestID = strings.TrimSpace(contest.ContestID)
	s.contests[contest.ContestID] = contest
}

// SetContestStatus is a test hook standing in for the admin collaborator.
func (s *Store) SetContestStatus(contestID string, status entities.ContestStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contest, ok := s.contests[strings.TrimSpace(contestID)]
	if !ok {
		return
	}
	contest.Status = status
	s.contests[contest.ContestID] = contest
}

// SetNow overrides the store clock.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) GetContest(_ context.Context, contestID string) (entities.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contest, ok := s.contests[strings.TrimSpace(contestID)]
	if !ok {
		return entities.Contest{}, domainerrors.ErrContestNotFound
	}
	return contest, nil
}

func (s *Store) RecordVote(_ context.Context, vote entities.VoteRecord) (entities.VoteRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(vote.ContestID, vote.DeviceFingerprint)
	existing, replaced := s.votes[key]
	if replaced {
		existing.Choice = vote.Choice
		existing.SourceAddress = vote.SourceAddress
		existing.UpdatedAt = vote.UpdatedAt
		s.votes[key] = existing
		return existing, true, nil
	}
	s.votes[key] = normalizeVote(vote)
	return s.votes[key], false, nil
}

func (s *Store) InsertVote(_ context.Context, vote entities.VoteRecord) (entities.VoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(vote.ContestID, vote.DeviceFingerprint)
	if _, exists := s.votes[key]; exists {
		return entities.VoteRecord{}, domainerrors.ErrAlreadyVoted
	}
	s.votes[key] = normalizeVote(vote)
	return s.votes[key], nil
}

func (s *Store) GetVote(_ context.Context, contestID string, deviceFingerprint string) (entities.VoteRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[keyOf(contestID, deviceFingerprint)]
	return vote, ok, nil
}

func (s *Store) CountByChoice(_ context.Context, contestID string) (map[entities.Choice]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contestID = strings.TrimSpace(contestID)
	counts := make(map[entities.Choice]int)
	for key, vote := range s.votes {
		if key.contestID == contestID {
			counts[vote.Choice]++
		}
	}
	return counts, nil
}

// VoteCount returns how many ledger rows exist for contestID.
func (s *Store) VoteCount(contestID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for key := range s.votes {
		if key.contestID == strings.TrimSpace(contestID) {
			total++
		}
	}
	return total
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func keyOf(contestID string, device string) voteKey {
	return voteKey{contestID: strings.TrimSpace(contestID), device: strings.TrimSpace(device)}
}

func normalizeVote(vote entities.VoteRecord) entities.VoteRecord {
	vote.ContestID = strings.TrimSpace(vote.ContestID)
	vote.DeviceFingerprint = strings.TrimSpace(vote.DeviceFingerprint)
	if vote.UpdatedAt.IsZero() {
		vote.UpdatedAt = vote.CreatedAt
	}
	return vote
}

var _ ports.ContestLookup = (*Store)(nil)
var _ ports.VoteLedger = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
