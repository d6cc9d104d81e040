package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/engine"
	"solana-alpha-engine/internal/storage"
)

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status  string        `json:"status"`
	Health  engine.Health `json:"health"`
	Running bool          `json:"running"`
}

// handleHealth answers 200 while the process serves requests, whatever the engine state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Health: st.Health, Running: st.Running})
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	engine.Status
	Uptime string `json:"uptime,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	resp := StatusResponse{Status: st}
	if st.Running && !st.StartedAt.IsZero() {
		resp.Uptime = s.now().Sub(st.StartedAt).Round(time.Second).String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.engine.Positions()
	if positions == nil {
		positions = []*domain.Position{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", DefaultExecutionLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	execs := s.engine.Executions(limit)
	if execs == nil {
		execs = []domain.ExecutionRequest{}
	}
	s.writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.trades == nil {
		s.writeError(w, http.StatusNotImplemented, "trade ledger not configured")
		return
	}
	limit, err := queryInt(r, "limit", DefaultTradeLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	since, err := queryInt64(r, "since", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := storage.TradeFilter{
		Symbol: r.URL.Query().Get("symbol"),
		Since:  since,
		Limit:  limit,
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()
	trades, err := s.trades.List(ctx, filter)
	if err != nil {
		s.logger.WithError(err).Error("list trades failed")
		s.writeError(w, http.StatusInternalServerError, "list trades failed")
		return
	}
	if trades == nil {
		trades = []*domain.TradeRecord{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if s.samples == nil {
		s.writeError(w, http.StatusNotImplemented, "price archive not configured")
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		s.writeError(w, http.StatusBadRequest, "asset is required")
		return
	}
	from, err := queryInt64(r, "from", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryInt64(r, "to", s.now().UnixMilli())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to < from {
		s.writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()
	samples, err := s.samples.GetByTimeRange(ctx, asset, from, to)
	if err != nil {
		s.logger.WithError(err).WithField("asset", asset).Error("query samples failed")
		s.writeError(w, http.StatusInternalServerError, "query samples failed")
		return
	}
	if samples == nil {
		samples = []*domain.PriceSample{}
	}
	s.writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Start(s.runCtx)
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Info("engine started by operator")
		s.writeJSON(w, http.StatusOK, s.engine.Status())
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Stop()
	switch {
	case errors.Is(err, engine.ErrNotRunning):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Info("engine stopped by operator")
		s.writeJSON(w, http.StatusOK, s.engine.Status())
	}
}

// EmergencyExitResponse is the JSON response for /emergency-exit.
type EmergencyExitResponse struct {
	Results []engine.ExitResult `json:"results"`
}

func (s *Server) handleEmergencyExit(w http.ResponseWriter, r *http.Request) {
	results := s.engine.ForceExitAll(context.WithoutCancel(r.Context()))
	s.logger.WithField("positions", len(results)).Warn("emergency exit by operator")
	s.writeJSON(w, http.StatusOK, EmergencyExitResponse{Results: results})
}
