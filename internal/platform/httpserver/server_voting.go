package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	httpadapter "battlevoter/contexts/live-events/battle-voting/adapters/http"
	"battlevoter/contexts/live-events/battle-voting/application/livefeed"
	votingerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	votinghttp "battlevoter/contexts/live-events/battle-voting/transport/http"
)

const maxVoteBodyBytes = 4 << 10

func (s *Server) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.SubmitVoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVoteBodyBytes)).Decode(&req); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	// A missing credential is passed through: the gate reports a closed
	// contest before it looks at credentials.
	resp, err := s.voting.Handler.SubmitVoteHandler(
		r.Context(),
		bearerToken(r),
		resolveClientIP(r, s.opts.TrustForwardedHeaders),
		req,
	)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetContest(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.GetContestHandler(r.Context(), r.PathValue("contest_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTally(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.GetTallyHandler(r.Context(), r.PathValue("contest_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLiveTally streams server-sent events. Headers are only committed with
// the first event so lookup failures can still be reported as JSON errors.
func (s *Server) handleLiveTally(w http.ResponseWriter, r *http.Request) {
	contestID := r.PathValue("contest_id")
	controller := http.NewResponseController(w)
	started := false

	err := s.voting.Handler.StreamTallyHandler(r.Context(), contestID, func(event livefeed.Event) error {
		if !started {
			_ = controller.SetWriteDeadline(noDeadline)
			header := w.Header()
			header.Set("Content-Type", "text/event-stream")
			header.Set("Cache-Control", "no-cache")
			header.Set("Connection", "keep-alive")
			header.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := writeSSEEvent(w, event); err != nil {
			return err
		}
		return controller.Flush()
	})
	if err == nil {
		return
	}
	if !started {
		writeVotingDomainError(w, err)
		return
	}
	s.logger.Debug("live tally stream ended",
		"event", "http_live_stream_ended",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"contest_id", contestID,
		"error", err.Error(),
	)
}

func writeSSEEvent(w http.ResponseWriter, event livefeed.Event) error {
	if event.Kind == livefeed.EventHeartbeat {
		_, err := fmt.Fprint(w, ": heartbeat\n\n")
		return err
	}
	payload, err := json.Marshal(httpadapter.MapTally(event.Tally))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
	return err
}

func writeVotingDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, votingerrors.ErrInvalidVoteInput):
		writeVotingError(w, http.StatusBadRequest, "invalid_vote_input", err.Error())
	case errors.Is(err, votingerrors.ErrAuthenticationFailure):
		writeVotingError(w, http.StatusUnauthorized, "authentication_failed", votingerrors.ErrAuthenticationFailure.Error())
	case errors.Is(err, votingerrors.ErrContestMismatch):
		writeVotingError(w, http.StatusForbidden, "contest_mismatch", err.Error())
	case errors.Is(err, votingerrors.ErrContestNotFound):
		writeVotingError(w, http.StatusNotFound, "contest_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrContestNotOpen):
		writeVotingError(w, http.StatusConflict, "contest_not_open", err.Error())
	case errors.Is(err, votingerrors.ErrAlreadyVoted):
		writeVotingError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, votingerrors.ErrRateLimitExceeded):
		writeVotingError(w, http.StatusTooManyRequests, "rate_limit_exceeded", err.Error())
	case errors.Is(err, votingerrors.ErrStorageUnavailable):
		writeVotingError(w, http.StatusServiceUnavailable, "storage_unavailable", votingerrors.ErrStorageUnavailable.Error())
	default:
		writeVotingError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeVotingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
