package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	quadraticvoting "quadvote/contexts/governance/quadratic-voting"
	votingerrors "quadvote/contexts/governance/quadratic-voting/domain/errors"
	votinghttp "quadvote/contexts/governance/quadratic-voting/transport/http"
	"quadvote/internal/platform/ratelimit"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "quadvote/internal/platform/httpserver/docs"
)

// RateLimitPolicy controls which request outcomes count against the
// caller's window. Skipped outcomes get their reserved hit refunded.
type RateLimitPolicy struct {
	SkipFailed    bool
	SkipSucceeded bool
}

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	voting  quadraticvoting.Module
	limiter *ratelimit.Limiter
	policy  RateLimitPolicy
}

func New(
	voting quadraticvoting.Module,
	limiter *ratelimit.Limiter,
	policy RateLimitPolicy,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		voting:  voting,
		limiter: limiter,
		policy:  policy,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the routed mux for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /api/votes/v1/votes", s.rateLimited(s.handleCreateVote))
	s.mux.HandleFunc("GET /api/votes/v1/votes/{vote_id}", s.handleGetVote)
	s.mux.HandleFunc("POST /api/votes/v1/votes/{vote_id}/responses", s.rateLimited(s.handleRecordResponse))
	s.mux.HandleFunc("POST /api/votes/v1/votes/{vote_id}/end", s.rateLimited(s.handleEndVote))
	s.mux.HandleFunc("GET /api/votes/v1/votes/{vote_id}/results", s.handleResults)
	s.mux.HandleFunc("DELETE /api/votes/v1/votes/{vote_id}", s.rateLimited(s.handleDeleteVote))
}

// statusRecorder captures the response status so the limiter policy can
// decide whether to refund the hit after the handler ran.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := resolveClientIP(r)
		result := s.limiter.Allow(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			s.logger.Warn("request rate limited",
				"event", "http_rate_limited",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"key", key,
				"path", r.URL.Path,
			)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, retry later")
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)

		failed := recorder.status >= http.StatusBadRequest
		if (failed && s.policy.SkipFailed) || (!failed && s.policy.SkipSucceeded) {
			s.limiter.Refund(key)
		}
	}
}

func (s *Server) handleCreateVote(w http.ResponseWriter, r *http.Request) {
	creatorID := r.Header.Get("X-User-Id")
	if strings.TrimSpace(creatorID) == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req votinghttp.CreateVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.voting.Handler.CreateVoteHandler(r.Context(), creatorID, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetVote(w http.ResponseWriter, r *http.Request) {
	voteID := r.PathValue("vote_id")
	resp, err := s.voting.Handler.GetVoteHandler(r.Context(), voteID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordResponse(w http.ResponseWriter, r *http.Request) {
	voterID := r.Header.Get("X-User-Id")
	if strings.TrimSpace(voterID) == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req votinghttp.RecordResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	voteID := r.PathValue("vote_id")
	resp, err := s.voting.Handler.RecordResponseHandler(r.Context(), voteID, voterID, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEndVote(w http.ResponseWriter, r *http.Request) {
	requesterID := r.Header.Get("X-User-Id")
	if strings.TrimSpace(requesterID) == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	voteID := r.PathValue("vote_id")
	resp, err := s.voting.Handler.EndVoteHandler(r.Context(), voteID, requesterID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	voteID := r.PathValue("vote_id")
	resp, err := s.voting.Handler.ResultsHandler(r.Context(), voteID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteVote(w http.ResponseWriter, r *http.Request) {
	requesterID := r.Header.Get("X-User-Id")
	if strings.TrimSpace(requesterID) == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	voteID := r.PathValue("vote_id")
	if err := s.voting.Handler.DeleteVoteHandler(r.Context(), voteID, requesterID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var budgetErr *votingerrors.BudgetExceededError
	if errors.As(err, &budgetErr) {
		writeJSON(w, http.StatusConflict, votinghttp.BudgetExceededResponse{
			Code:      "budget_exceeded",
			Message:   budgetErr.Error(),
			Attempted: budgetErr.Attempted,
			Available: budgetErr.Available,
		})
		return
	}

	switch {
	case errors.Is(err, votingerrors.ErrVoteNotFound):
		writeError(w, http.StatusNotFound, "vote_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrVoteEnded):
		writeError(w, http.StatusConflict, "vote_ended", err.Error())
	case errors.Is(err, votingerrors.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, votingerrors.ErrBudgetExceeded):
		writeError(w, http.StatusConflict, "budget_exceeded", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidOption),
		errors.Is(err, votingerrors.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
