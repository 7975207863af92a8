package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	battlevoting "battlevoter/contexts/live-events/battle-voting"
	_ "battlevoter/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	Addr                  string
	AllowedOrigins        []string
	TrustForwardedHeaders bool
	ShutdownTimeout       time.Duration
}

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	opts       Options
	voting     battlevoting.Module
	httpServer *http.Server

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func New(voting battlevoting.Module, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		opts:       opts,
		voting:     voting,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s
}

// Handler is the full middleware chain around the route table.
func (s *Server) Handler() http.Handler {
	return withCORS(s.opts.AllowedOrigins, withLogging(s.logger, s.mux))
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.opts.Addr,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends live streams first, since they never finish on their own,
// then drains the remaining requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /votes", s.handleSubmitVote)
	s.mux.HandleFunc("GET /contests/{contest_id}", s.handleGetContest)
	s.mux.HandleFunc("GET /contests/{contest_id}/tally", s.handleGetTally)
	s.mux.HandleFunc("GET /contests/{contest_id}/live", s.handleLiveTally)

	s.mux.HandleFunc("POST /vote", s.handleSubmitVote)
	s.mux.HandleFunc("GET /battles/{contest_id}", s.handleGetContest)
	s.mux.HandleFunc("GET /tallies/{contest_id}", s.handleGetTally)
	s.mux.HandleFunc("GET /sse/battles/{contest_id}", s.handleLiveTally)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
