// Package handlers provides HTTP handlers for risk operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/history"
	"github.com/aristath/custodian/internal/modules/risk"
)

// Handler handles risk and kill switch HTTP requests
type Handler struct {
	estimator  *risk.Estimator
	killSwitch *risk.KillSwitch
	manager    *risk.Manager
	history    domain.PortfolioHistorySource
	varCfg     config.VaRConfig
	mcCfg      config.MonteCarloConfig
	log        zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(
	estimator *risk.Estimator,
	killSwitch *risk.KillSwitch,
	manager *risk.Manager,
	hist domain.PortfolioHistorySource,
	varCfg config.VaRConfig,
	mcCfg config.MonteCarloConfig,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		estimator:  estimator,
		killSwitch: killSwitch,
		manager:    manager,
		history:    hist,
		varCfg:     varCfg,
		mcCfg:      mcCfg,
		log:        log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetVaR handles GET /api/risk/var
// Query parameters confidence, horizon and method are optional and default
// to the configured values.
func (h *Handler) HandleGetVaR(w http.ResponseWriter, r *http.Request) {
	confidence := h.varCfg.ConfidenceLevel
	if v := r.URL.Query().Get("confidence"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed >= 1 {
			http.Error(w, "confidence must be a number in (0, 1)", http.StatusBadRequest)
			return
		}
		confidence = parsed
	}

	horizon := h.varCfg.TimeHorizonDays
	if v := r.URL.Query().Get("horizon"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "horizon must be a positive integer", http.StatusBadRequest)
			return
		}
		horizon = parsed
	}

	method := h.varCfg.Method
	if v := r.URL.Query().Get("method"); v != "" {
		switch v {
		case risk.MethodHistorical, risk.MethodParametric, risk.MethodMonteCarlo:
			method = v
		default:
			http.Error(w, "method must be historical, parametric or monte_carlo", http.StatusBadRequest)
			return
		}
	}

	returns, value, ok := h.loadHistory(w, r)
	if !ok {
		return
	}

	result := h.estimator.CalculateVaR(returns, value, confidence, horizon, method)
	h.writeJSON(w, http.StatusOK, envelope(result))
}

// defaultVaRHorizons is reported when the request names no horizons
var defaultVaRHorizons = []int{1, 7, 30}

// HandleMultiHorizonVaR handles GET /api/risk/var/multi-horizon
// horizons is a comma-separated list of day counts, defaulting to 1,7,30.
func (h *Handler) HandleMultiHorizonVaR(w http.ResponseWriter, r *http.Request) {
	confidence := h.varCfg.ConfidenceLevel
	if v := r.URL.Query().Get("confidence"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed >= 1 {
			http.Error(w, "confidence must be a number in (0, 1)", http.StatusBadRequest)
			return
		}
		confidence = parsed
	}

	horizons := defaultVaRHorizons
	if v := r.URL.Query().Get("horizons"); v != "" {
		parsed, ok := parseHorizons(v)
		if !ok {
			http.Error(w, "horizons must be comma-separated positive integers", http.StatusBadRequest)
			return
		}
		horizons = parsed
	}

	returns, value, ok := h.loadHistory(w, r)
	if !ok {
		return
	}

	results := h.estimator.CalculateMultiHorizonVaR(returns, value, confidence, horizons)
	data := map[string]interface{}{
		"results":          results,
		"confidence_level": confidence,
		"portfolio_value":  value,
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

func parseHorizons(raw string) ([]int, bool) {
	parts := strings.Split(raw, ",")
	horizons := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 1 {
			return nil, false
		}
		horizons = append(horizons, d)
	}
	return horizons, true
}

// HandleMonteCarlo handles GET /api/risk/monte-carlo
// Returns the simulation summary; the raw simulated values are omitted.
func (h *Handler) HandleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	sims := h.mcCfg.NumSimulations
	if v := r.URL.Query().Get("simulations"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 1000000 {
			http.Error(w, "simulations must be a positive integer up to 1000000", http.StatusBadRequest)
			return
		}
		sims = parsed
	}

	horizon := h.mcCfg.TimeHorizonDays
	if v := r.URL.Query().Get("horizon"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "horizon must be a positive integer", http.StatusBadRequest)
			return
		}
		horizon = parsed
	}

	returns, value, ok := h.loadHistory(w, r)
	if !ok {
		return
	}

	result := h.estimator.RunSimulation(returns, value, sims, horizon)

	data := map[string]interface{}{
		"num_simulations":     sims,
		"horizon_days":        horizon,
		"initial_value":       value,
		"mean_return":         result.MeanReturn,
		"std_return":          result.StdReturn,
		"median_return":       result.MedianReturn,
		"var_95":              result.VaR95,
		"var_99":              result.VaR99,
		"cvar_95":             result.CVaR95,
		"probability_of_loss": result.ProbabilityOfLoss,
		"expected_shortfall":  result.ExpectedShortfall,
		"best_case":           result.BestCase,
		"worst_case":          result.WorstCase,
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleKillSwitchState handles GET /api/killswitch/state
func (h *Handler) HandleKillSwitchState(w http.ResponseWriter, r *http.Request) {
	breakerActive, breakerReason := h.manager.CircuitBreakerState()

	data := map[string]interface{}{
		"kill_switch": h.killSwitch.GetState(),
		"circuit_breaker": map[string]interface{}{
			"active": breakerActive,
			"reason": breakerReason,
		},
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleKillSwitchEvents handles GET /api/killswitch/events?limit=
func (h *Handler) HandleKillSwitchEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	evts := h.killSwitch.GetEvents(limit)
	data := map[string]interface{}{
		"events": evts,
		"count":  len(evts),
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// HandleActivateKillSwitch handles POST /api/killswitch/activate
func (h *Handler) HandleActivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	changed := h.killSwitch.ManuallyActivate(req.Reason)
	data := map[string]interface{}{
		"activated": changed,
		"state":     h.killSwitch.GetState(),
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleDeactivateKillSwitch handles POST /api/killswitch/deactivate
func (h *Handler) HandleDeactivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	changed := h.killSwitch.ManuallyDeactivate(req.Reason)
	data := map[string]interface{}{
		"deactivated": changed,
		"state":       h.killSwitch.GetState(),
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleTriggerCircuitBreaker handles POST /api/risk/circuit-breaker/trigger
func (h *Handler) HandleTriggerCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	h.manager.TriggerCircuitBreaker(req.Reason)
	h.writeBreakerState(w)
}

// HandleResetCircuitBreaker handles POST /api/risk/circuit-breaker/reset
func (h *Handler) HandleResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	h.manager.ResetCircuitBreaker()
	h.writeBreakerState(w)
}

func (h *Handler) writeBreakerState(w http.ResponseWriter) {
	active, reason := h.manager.CircuitBreakerState()
	data := map[string]interface{}{
		"active": active,
		"reason": reason,
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

func (h *Handler) loadHistory(w http.ResponseWriter, r *http.Request) ([]float64, float64, bool) {
	returns, err := h.history.ReturnSeries(r.Context(), history.ScopeGlobal, h.varCfg.LookbackDays)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load return series")
		http.Error(w, "Failed to load portfolio history", http.StatusInternalServerError)
		return nil, 0, false
	}
	value, err := h.history.PortfolioValue(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load portfolio value")
		http.Error(w, "Failed to load portfolio value", http.StatusInternalServerError)
		return nil, 0, false
	}
	return returns, value, true
}

func (h *Handler) decodeReason(w http.ResponseWriter, r *http.Request) (reasonRequest, bool) {
	var req reasonRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return req, false
		}
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}
	return req, true
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
