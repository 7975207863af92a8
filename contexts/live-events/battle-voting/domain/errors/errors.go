package errors

import "errors"

var (
	ErrInvalidVoteInput      = errors.New("invalid vote input")
	ErrAuthenticationFailure = errors.New("credential is invalid or expired")
	ErrContestMismatch       = errors.New("credential is bound to a different contest")
	ErrContestNotFound       = errors.New("contest not found")
	ErrContestNotOpen        = errors.New("contest is not open for voting")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrAlreadyVoted          = errors.New("device has already voted in this contest")
	ErrStorageUnavailable    = errors.New("vote storage unavailable")
)
