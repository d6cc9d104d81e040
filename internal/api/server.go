// Package api serves the operator HTTP interface of the engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/engine"
	"solana-alpha-engine/internal/observability"
	"solana-alpha-engine/internal/storage"
)

// Defaults.
const (
	DefaultExecutionLimit = 50
	DefaultTradeLimit     = 100
	DefaultQueryTimeout   = 10 * time.Second
	maxLimit              = 1000
)

// Controller is the engine surface the API drives. Implemented by *engine.Engine.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Status() engine.Status
	Positions() []*domain.Position
	Executions(limit int) []domain.ExecutionRequest
	ForceExitAll(ctx context.Context) []engine.ExitResult
	Subscribe(buffer int) (<-chan engine.Event, func())
}

// Options configures a Server.
type Options struct {
	Engine  Controller
	Trades  storage.TradeRecordStore // nil disables /trades
	Samples storage.PriceSampleStore // nil disables /samples

	// RunContext parents engine loops started through /start. Default context.Background().
	RunContext context.Context

	QueryTimeout time.Duration
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// Server routes operator requests to the engine and the stores.
type Server struct {
	engine       Controller
	trades       storage.TradeRecordStore
	samples      storage.PriceSampleStore
	runCtx       context.Context
	queryTimeout time.Duration
	logger       logrus.FieldLogger
	now          func() time.Time
	mux          *http.ServeMux
}

// New creates a Server with every route registered.
func New(opts Options) *Server {
	s := &Server{
		engine:       opts.Engine,
		trades:       opts.Trades,
		samples:      opts.Samples,
		runCtx:       opts.RunContext,
		queryTimeout: opts.QueryTimeout,
		logger:       opts.Logger,
		now:          opts.Now,
		mux:          http.NewServeMux(),
	}
	if s.runCtx == nil {
		s.runCtx = context.Background()
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = DefaultQueryTimeout
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.logger = s.logger.WithField("component", "api")
	if s.now == nil {
		s.now = time.Now
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", observability.Handler())
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /positions", s.handlePositions)
	s.mux.HandleFunc("GET /executions", s.handleExecutions)
	s.mux.HandleFunc("GET /trades", s.handleTrades)
	s.mux.HandleFunc("GET /samples", s.handleSamples)
	s.mux.HandleFunc("POST /start", s.handleStart)
	s.mux.HandleFunc("POST /stop", s.handleStop)
	s.mux.HandleFunc("POST /emergency-exit", s.handleEmergencyExit)
	s.mux.HandleFunc("GET /ws", s.handleEvents)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// queryInt parses an optional positive integer parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func queryInt64(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative unix millisecond timestamp")
	}
	return n, nil
}
