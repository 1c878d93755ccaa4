package server

import (
	"encoding/json"
	"net/http"

	"github.com/akrotiri/helmsman/internal/strategy"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// runID resolves the run to query: the ?run query parameter, falling back
// to the server's default run.
func (s *Server) requestRunID(r *http.Request) string {
	if run := r.URL.Query().Get("run"); run != "" {
		return run
	}
	return s.runID
}

func (s *Server) handleEquityCurve(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no snapshot store configured")
		return
	}
	curve, err := s.snapshots.EquityCurve(r.Context(), s.requestRunID(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load equity curve")
		s.respondError(w, http.StatusInternalServerError, "failed to load equity curve")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    s.requestRunID(r),
		"snapshots": curve,
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.trades == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no trade store configured")
		return
	}
	trades, err := s.trades.ByRun(r.Context(), s.requestRunID(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load trades")
		s.respondError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": s.requestRunID(r),
		"trades": trades,
	})
}

func (s *Server) handleRegimes(w http.ResponseWriter, r *http.Request) {
	if s.regimes == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no regime store configured")
		return
	}
	history, err := s.regimes.History(r.Context(), s.requestRunID(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load regime history")
		s.respondError(w, http.StatusInternalServerError, "failed to load regime history")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  s.requestRunID(r),
		"regimes": history,
	})
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	if s.signals == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no live run")
		return
	}
	signals := s.signals.LastSignals()
	if !signals.Ready {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"ready": false,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, allocationResponse(signals))
}

func allocationResponse(signals strategy.Signals) map[string]interface{} {
	weights := make(map[string]string, len(signals.Target.Weights))
	for symbol, weight := range signals.Target.Weights {
		weights[symbol] = weight.String()
	}
	return map[string]interface{}{
		"ready":   true,
		"cell":    signals.Regime.Cell,
		"trend":   signals.Regime.Trend,
		"vol":     signals.Regime.Vol,
		"weights": weights,
		"cash":    signals.Target.Cash.String(),
	}
}
