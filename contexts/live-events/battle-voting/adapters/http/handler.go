package httpadapter

import (
	"context"
	"log/slog"

	application "battlevoter/contexts/live-events/battle-voting/application"
	"battlevoter/contexts/live-events/battle-voting/application/commands"
	"battlevoter/contexts/live-events/battle-voting/application/livefeed"
	"battlevoter/contexts/live-events/battle-voting/application/queries"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	domainerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	"battlevoter/contexts/live-events/battle-voting/ports"
	httptransport "battlevoter/contexts/live-events/battle-voting/transport/http"
)

type Handler struct {
	Votes    commands.SubmitVoteUseCase
	Tallies  queries.TallyAggregator
	Contests ports.ContestLookup
	Feed     livefeed.Feed
	Logger   *slog.Logger
}

// SubmitVoteHandler godoc
// @Summary Cast or change a vote
// @Description Records one vote per device per contest. A repeat vote from the same device replaces its earlier choice.
// @Tags battle-voting
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body httptransport.SubmitVoteRequest true "Vote"
// @Success 200 {object} httptransport.SubmitVoteResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 429 {object} httptransport.ErrorResponse
// @Failure 503 {object} httptransport.ErrorResponse
// @Router /votes [post]
func (h Handler) SubmitVoteHandler(
	ctx context.Context,
	credential string,
	sourceAddress string,
	req httptransport.SubmitVoteRequest,
) (httptransport.SubmitVoteResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Debug("submit vote request received",
		"event", "http_submit_vote_received",
		"module", "live-events/battle-voting",
		"layer", "transport",
		"contest_id", req.ContestID,
	)
	choice, ok := entities.ParseChoice(req.Choice)
	if !ok {
		return httptransport.SubmitVoteResponse{}, domainerrors.ErrInvalidVoteInput
	}
	result, err := h.Votes.SubmitVote(ctx, commands.SubmitVoteCommand{
		ContestID:         req.ContestID,
		DeviceFingerprint: req.DeviceFingerprint,
		Choice:            choice,
		SourceAddress:     sourceAddress,
		Credential:        credential,
	})
	if err != nil {
		return httptransport.SubmitVoteResponse{}, err
	}

	message := "Vote recorded successfully"
	if result.WasUpdate {
		message = "Vote updated successfully"
	}
	resp := httptransport.SubmitVoteResponse{
		Success:   true,
		Message:   message,
		VoteID:    result.Vote.VoteID,
		WasUpdate: result.WasUpdate,
	}
	if result.Tally != nil {
		tally := MapTally(*result.Tally)
		resp.Tally = &tally
	}
	return resp, nil
}

// GetTallyHandler godoc
// @Summary Get contest tally
// @Tags battle-voting
// @Produce json
// @Param contest_id path string true "Contest id"
// @Success 200 {object} httptransport.TallyResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 503 {object} httptransport.ErrorResponse
// @Router /contests/{contest_id}/tally [get]
func (h Handler) GetTallyHandler(ctx context.Context, contestID string) (httptransport.TallyResponse, error) {
	if _, err := h.Contests.GetContest(ctx, contestID); err != nil {
		return httptransport.TallyResponse{}, err
	}
	snapshot, err := h.Tallies.GetTally(ctx, contestID)
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	return MapTally(snapshot), nil
}

// GetContestHandler godoc
// @Summary Get contest
// @Tags battle-voting
// @Produce json
// @Param contest_id path string true "Contest id"
// @Success 200 {object} httptransport.ContestResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /contests/{contest_id} [get]
func (h Handler) GetContestHandler(ctx context.Context, contestID string) (httptransport.ContestResponse, error) {
	contest, err := h.Contests.GetContest(ctx, contestID)
	if err != nil {
		return httptransport.ContestResponse{}, err
	}
	return httptransport.ContestResponse{
		ContestID:    contest.ContestID,
		EventID:      contest.EventID,
		ParticipantA: contest.ParticipantA,
		ParticipantB: contest.ParticipantB,
		StartsAt:     contest.StartsAt,
		EndsAt:       contest.EndsAt,
		Status:       string(contest.Status),
	}, nil
}

// StreamTallyHandler godoc
// @Summary Stream live tally
// @Description Server-sent events. The first event is a snapshot, followed by update events and heartbeat comments.
// @Tags battle-voting
// @Produce text/event-stream
// @Param contest_id path string true "Contest id"
// @Success 200 {object} httptransport.TallyResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /contests/{contest_id}/live [get]
//
// It blocks for the life of the viewer connection.
func (h Handler) StreamTallyHandler(ctx context.Context, contestID string, emit livefeed.EmitFunc) error {
	return h.Feed.Stream(ctx, contestID, emit)
}

func MapTally(snapshot entities.TallySnapshot) httptransport.TallyResponse {
	return httptransport.TallyResponse{
		ContestID:  snapshot.ContestID,
		A:          snapshot.Count(entities.ChoiceA),
		B:          snapshot.Count(entities.ChoiceB),
		Replica:    snapshot.Count(entities.ChoiceReplica),
		Total:      snapshot.Total(),
		ComputedAt: snapshot.ComputedAt,
	}
}
