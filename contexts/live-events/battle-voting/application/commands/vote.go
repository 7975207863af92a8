package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "battlevoter/contexts/live-events/battle-voting/application"
	"battlevoter/contexts/live-events/battle-voting/application/eligibility"
	"battlevoter/contexts/live-events/battle-voting/application/queries"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	domainerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	"battlevoter/contexts/live-events/battle-voting/ports"
)

const maxDeviceFingerprintLength = 256

// SubmitVoteCommand is the write-model input for one ballot.
type SubmitVoteCommand struct {
	ContestID         string
	DeviceFingerprint string
	Choice            entities.Choice
	SourceAddress     string
	Credential        string
}

// SubmitVoteResult carries the stored ballot and the tally recomputed right
// after it. Tally is nil when the recompute failed after the ballot was
// already committed.
type SubmitVoteResult struct {
	Vote      entities.VoteRecord
	WasUpdate bool
	Tally     *entities.TallySnapshot
}

// SubmitVoteUseCase runs the vote pipeline: gate, rate limit, ledger commit,
// tally recompute, publish. Anything failing before the commit leaves no
// trace; anything failing after it is logged and the vote still succeeds.
type SubmitVoteUseCase struct {
	Gate        eligibility.Gate
	RateLimiter ports.RateLimiter
	Ledger      ports.VoteLedger
	Tallies     queries.TallyAggregator
	Publisher   ports.TallyPublisher
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Policy      entities.DuplicatePolicy
	Logger      *slog.Logger
}

func (uc SubmitVoteUseCase) SubmitVote(ctx context.Context, cmd SubmitVoteCommand) (SubmitVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	cmd.ContestID = strings.TrimSpace(cmd.ContestID)
	cmd.DeviceFingerprint = strings.TrimSpace(cmd.DeviceFingerprint)
	cmd.SourceAddress = strings.TrimSpace(cmd.SourceAddress)
	if cmd.SourceAddress == "" {
		cmd.SourceAddress = "unknown"
	}

	if cmd.ContestID == "" ||
		cmd.DeviceFingerprint == "" ||
		len(cmd.DeviceFingerprint) > maxDeviceFingerprintLength ||
		!cmd.Choice.Valid() {
		logger.Warn("vote validation failed",
			"event", "voting_submit_validation_failed",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", cmd.ContestID,
			"choice", string(cmd.Choice),
		)
		return SubmitVoteResult{}, domainerrors.ErrInvalidVoteInput
	}

	if _, err := uc.Gate.Check(ctx, cmd.Credential, cmd.ContestID); err != nil {
		return SubmitVoteResult{}, err
	}

	if err := uc.admit(ctx, cmd); err != nil {
		return SubmitVoteResult{}, err
	}

	now := uc.now()
	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return SubmitVoteResult{}, err
	}
	record := entities.VoteRecord{
		VoteID:            voteID,
		ContestID:         cmd.ContestID,
		DeviceFingerprint: cmd.DeviceFingerprint,
		Choice:            cmd.Choice,
		SourceAddress:     cmd.SourceAddress,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stored, replaced, err := uc.record(ctx, record)
	if err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyVoted) {
			logger.Info("duplicate vote rejected",
				"event", "voting_submit_duplicate_rejected",
				"module", "live-events/battle-voting",
				"layer", "application",
				"contest_id", cmd.ContestID,
			)
		} else {
			logger.Error("vote commit failed",
				"event", "voting_submit_commit_failed",
				"module", "live-events/battle-voting",
				"layer", "application",
				"contest_id", cmd.ContestID,
				"error", err.Error(),
			)
		}
		return SubmitVoteResult{}, err
	}

	result := SubmitVoteResult{Vote: stored, WasUpdate: replaced}

	// The ballot is durable from here on; a caller hanging up must not stop
	// the recompute or the broadcast other viewers are waiting for.
	ctx = context.WithoutCancel(ctx)
	snapshot, err := uc.Tallies.Refresh(ctx, cmd.ContestID)
	if err != nil {
		logger.Warn("vote committed without fresh tally",
			"event", "voting_submit_recompute_skipped",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", cmd.ContestID,
			"vote_id", stored.VoteID,
			"error", err.Error(),
		)
		return result, nil
	}
	result.Tally = &snapshot

	if uc.Publisher != nil {
		if err := uc.Publisher.Publish(ctx, cmd.ContestID, snapshot); err != nil {
			logger.Warn("tally publish failed",
				"event", "voting_submit_publish_failed",
				"module", "live-events/battle-voting",
				"layer", "application",
				"contest_id", cmd.ContestID,
				"vote_id", stored.VoteID,
				"error", err.Error(),
			)
		}
	}

	logger.Info("vote accepted",
		"event", "voting_submit_accepted",
		"module", "live-events/battle-voting",
		"layer", "application",
		"contest_id", cmd.ContestID,
		"vote_id", stored.VoteID,
		"choice", string(stored.Choice),
		"was_update", replaced,
	)
	return result, nil
}

// admit consults the rate limiter. A limiter backend failure admits the
// request: the ledger's uniqueness still bounds what one device can do.
func (uc SubmitVoteUseCase) admit(ctx context.Context, cmd SubmitVoteCommand) error {
	if uc.RateLimiter == nil {
		return nil
	}
	allowed, err := uc.RateLimiter.Admit(ctx, cmd.SourceAddress)
	if err != nil {
		application.ResolveLogger(uc.Logger).Error("rate limiter unavailable, admitting",
			"event", "voting_submit_rate_limiter_failed",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", cmd.ContestID,
			"source_address", cmd.SourceAddress,
			"error", err.Error(),
		)
		return nil
	}
	if !allowed {
		application.ResolveLogger(uc.Logger).Warn("vote rate limited",
			"event", "voting_submit_rate_limited",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", cmd.ContestID,
			"source_address", cmd.SourceAddress,
		)
		return domainerrors.ErrRateLimitExceeded
	}
	return nil
}

func (uc SubmitVoteUseCase) record(ctx context.Context, record entities.VoteRecord) (entities.VoteRecord, bool, error) {
	if uc.Policy == entities.DuplicatePolicyReject {
		stored, err := uc.Ledger.InsertVote(ctx, record)
		return stored, false, err
	}
	return uc.Ledger.RecordVote(ctx, record)
}

func (uc SubmitVoteUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
