package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/history"
)

// Manager is the mandatory pre-trade gate. It combines circuit breaker
// state, kill switch state and a VaR check into a single pass/fail decision
// with the full list of violated reasons.
type Manager struct {
	cfg        config.VaRConfig
	estimator  *Estimator
	killSwitch *KillSwitch
	history    domain.PortfolioHistorySource
	events     *events.Manager
	log        zerolog.Logger

	mu            sync.Mutex
	breakerActive bool
	breakerReason string
	breakerAt     time.Time
}

// NewManager creates the risk gate
func NewManager(cfg config.VaRConfig, estimator *Estimator, killSwitch *KillSwitch, hist domain.PortfolioHistorySource, evts *events.Manager, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		estimator:  estimator,
		killSwitch: killSwitch,
		history:    hist,
		events:     evts,
		log:        log.With().Str("service", "risk_manager").Logger(),
	}
}

// ValidateTrade checks a signal against every gate and returns all violated
// reasons. An empty list means the trade is allowed. An engaged circuit
// breaker short-circuits with a single reason.
func (m *Manager) ValidateTrade(ctx context.Context, userID int64, signal domain.TradeSignal) []string {
	m.mu.Lock()
	breakerActive, breakerReason := m.breakerActive, m.breakerReason
	m.mu.Unlock()

	if breakerActive {
		reason := "circuit breaker engaged"
		if breakerReason != "" {
			reason = fmt.Sprintf("circuit breaker engaged: %s", breakerReason)
		}
		return []string{reason}
	}

	var reasons []string

	if m.killSwitch != nil && m.killSwitch.IsActive() {
		state := m.killSwitch.GetState()
		reasons = append(reasons, fmt.Sprintf("drawdown kill switch active (%.2f%% drawdown)", state.CurrentDrawdownPercent))
	}

	if reason := m.checkVaR(ctx, userID); reason != "" {
		reasons = append(reasons, reason)
	}

	if strings.TrimSpace(signal.Symbol) == "" {
		reasons = append(reasons, "trade signal has no symbol")
	}

	if len(reasons) > 0 {
		m.log.Warn().
			Int64("user_id", userID).
			Str("symbol", signal.Symbol).
			Strs("reasons", reasons).
			Msg("Trade rejected by risk gate")
	}
	return reasons
}

// checkVaR computes portfolio VaR over the real return history and returns
// a rejection reason when it exceeds the configured maximum. A short or
// empty history means no measurable risk; an unreadable history fails
// closed because the gate cannot prove the trade is safe.
func (m *Manager) checkVaR(ctx context.Context, userID int64) string {
	if m.history == nil || m.estimator == nil {
		return ""
	}

	returns, err := m.history.ReturnSeries(ctx, history.ScopeGlobal, m.cfg.LookbackDays)
	if err != nil {
		m.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load return series for VaR gate")
		return fmt.Sprintf("risk data unavailable: %v", err)
	}
	value, err := m.history.PortfolioValue(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to load portfolio value for VaR gate")
		return fmt.Sprintf("risk data unavailable: %v", err)
	}

	result := m.estimator.CalculateVaR(returns, value, m.cfg.ConfidenceLevel, m.cfg.TimeHorizonDays, m.cfg.Method)
	if result.VaRPercent > m.cfg.MaxVaRPercent {
		return fmt.Sprintf("portfolio VaR %.2f%% exceeds maximum %.2f%%", result.VaRPercent, m.cfg.MaxVaRPercent)
	}
	return ""
}

// TriggerCircuitBreaker engages the operator emergency stop. Independent of
// the drawdown kill switch.
func (m *Manager) TriggerCircuitBreaker(reason string) {
	m.mu.Lock()
	m.breakerActive = true
	m.breakerReason = reason
	m.breakerAt = time.Now().UTC()
	m.mu.Unlock()

	m.log.Error().Str("reason", reason).Msg("CIRCUIT BREAKER TRIPPED")
	if m.events != nil {
		m.events.Emit(events.CircuitBreakerTripped, "risk", map[string]any{"reason": reason})
	}
}

// ResetCircuitBreaker disengages the operator emergency stop
func (m *Manager) ResetCircuitBreaker() {
	m.mu.Lock()
	wasActive := m.breakerActive
	m.breakerActive = false
	m.breakerReason = ""
	m.mu.Unlock()

	if !wasActive {
		return
	}
	m.log.Warn().Msg("Circuit breaker reset")
	if m.events != nil {
		m.events.Emit(events.CircuitBreakerReset, "risk", nil)
	}
}

// CircuitBreakerState reports whether the breaker is engaged and why
func (m *Manager) CircuitBreakerState() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerActive, m.breakerReason
}
