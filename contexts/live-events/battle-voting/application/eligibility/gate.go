package eligibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	application "battlevoter/contexts/live-events/battle-voting/application"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	domainerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	"battlevoter/contexts/live-events/battle-voting/ports"
)

// Gate decides whether a credential may vote in a contest right now. It has
// no side effects and must be consulted on every attempt because contest
// state changes between requests.
type Gate struct {
	Contests    ports.ContestLookup
	Credentials ports.CredentialVerifier
	Logger      *slog.Logger
}

// Check resolves the contest, requires it to be open, verifies the credential
// and finally requires the credential's event binding to match the contest.
// State is checked before the credential so a closed contest is reported as
// closed whatever the caller presents.
func (g Gate) Check(ctx context.Context, credential string, contestID string) (entities.Contest, error) {
	logger := application.ResolveLogger(g.Logger)
	contestID = strings.TrimSpace(contestID)

	contest, err := g.Contests.GetContest(ctx, contestID)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrContestNotFound) {
			logger.Error("contest lookup failed",
				"event", "eligibility_contest_lookup_failed",
				"module", "live-events/battle-voting",
				"layer", "application",
				"contest_id", contestID,
				"error", err.Error(),
			)
		}
		return entities.Contest{}, err
	}
	if !contest.IsOpen() {
		logger.Info("vote rejected for contest not open",
			"event", "eligibility_contest_not_open",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", contestID,
			"status", string(contest.Status),
		)
		return entities.Contest{}, domainerrors.ErrContestNotOpen
	}

	claims, err := g.Credentials.Verify(ctx, strings.TrimSpace(credential))
	if err != nil {
		logger.Warn("credential verification failed",
			"event", "eligibility_credential_rejected",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", contestID,
			"error", err.Error(),
		)
		if errors.Is(err, domainerrors.ErrAuthenticationFailure) {
			return entities.Contest{}, err
		}
		return entities.Contest{}, fmt.Errorf("%w: %v", domainerrors.ErrAuthenticationFailure, err)
	}
	if claims.EventID != contest.EventID {
		logger.Warn("credential bound to another event",
			"event", "eligibility_contest_mismatch",
			"module", "live-events/battle-voting",
			"layer", "application",
			"contest_id", contestID,
			"token_id", claims.TokenID,
		)
		return entities.Contest{}, domainerrors.ErrContestMismatch
	}
	return contest, nil
}
