package ports

import (
	"context"
	"time"

	"battlevoter/contexts/live-events/battle-voting/domain/entities"
)

// ContestLookup returns ErrContestNotFound for unknown ids.
type ContestLookup interface {
	GetContest(ctx context.Context, contestID string) (entities.Contest, error)
}

// CredentialClaims is what a verified bearer credential asserts.
type CredentialClaims struct {
	TokenID   string
	EventID   string
	ExpiresAt time.Time
}

// CredentialVerifier rejects invalid or expired credentials with
// ErrAuthenticationFailure.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (CredentialClaims, error)
}

// RateLimiter counts one request for sourceAddress and reports whether it is
// still inside the window budget. Increment and compare are atomic.
type RateLimiter interface {
	Admit(ctx context.Context, sourceAddress string) (bool, error)
}

type VoteLedger interface {
	// RecordVote inserts or replaces the device's ballot in one atomic
	// statement. replaced is true when an earlier ballot existed.
	RecordVote(ctx context.Context, vote entities.VoteRecord) (stored entities.VoteRecord, replaced bool, err error)
	// InsertVote stores a first ballot and fails with ErrAlreadyVoted if the
	// device already has one.
	InsertVote(ctx context.Context, vote entities.VoteRecord) (entities.VoteRecord, error)
	GetVote(ctx context.Context, contestID string, deviceFingerprint string) (entities.VoteRecord, bool, error)
	CountByChoice(ctx context.Context, contestID string) (map[entities.Choice]int, error)
}

// TallyCache holds at most one snapshot per contest. Set keeps whichever
// snapshot has the later ComputedAt and refuses snapshots computed before the
// asOf of the latest Invalidate, so a slow reader cannot repopulate counts
// that a write has already superseded.
type TallyCache interface {
	Get(ctx context.Context, contestID string) (entities.TallySnapshot, bool, error)
	Set(ctx context.Context, snapshot entities.TallySnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, contestID string, asOf time.Time) error
}

type TallyPublisher interface {
	Publish(ctx context.Context, contestID string, snapshot entities.TallySnapshot) error
}

// Subscription delivers snapshots for one contest until Close is called or
// the hub shuts down, at which point Updates is closed.
type Subscription interface {
	Updates() <-chan entities.TallySnapshot
	Close()
}

type TallySubscriber interface {
	Subscribe(contestID string) (Subscription, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
