// Package risk implements the risk gate: VaR and Monte Carlo estimators,
// the drawdown kill switch state machine, and the mandatory pre-trade
// risk manager.
package risk

import "time"

// VaR calculation methods
const (
	MethodHistorical = "historical"
	MethodParametric = "parametric"
	MethodMonteCarlo = "monte_carlo"
)

// VaRResult is a Value-at-Risk calculation result. Recomputed on demand,
// never mutated.
type VaRResult struct {
	VaRAbsolute     float64   `json:"var_absolute" msgpack:"var_absolute"`
	VaRPercent      float64   `json:"var_percent" msgpack:"var_percent"`
	CVaRAbsolute    float64   `json:"cvar_absolute" msgpack:"cvar_absolute"`
	CVaRPercent     float64   `json:"cvar_percent" msgpack:"cvar_percent"`
	ConfidenceLevel float64   `json:"confidence_level" msgpack:"confidence_level"`
	TimeHorizonDays int       `json:"time_horizon_days" msgpack:"time_horizon_days"`
	Method          string    `json:"method" msgpack:"method"`
	PortfolioValue  float64   `json:"portfolio_value" msgpack:"portfolio_value"`
	Timestamp       time.Time `json:"timestamp" msgpack:"timestamp"`
}

// HorizonVaR is one entry of a multi-horizon VaR calculation
type HorizonVaR struct {
	HorizonDays  int     `json:"horizon_days" msgpack:"horizon_days"`
	VaRAbsolute  float64 `json:"var_absolute" msgpack:"var_absolute"`
	VaRPercent   float64 `json:"var_percent" msgpack:"var_percent"`
	CVaRAbsolute float64 `json:"cvar_absolute" msgpack:"cvar_absolute"`
	CVaRPercent  float64 `json:"cvar_percent" msgpack:"cvar_percent"`
}

// MonteCarloResult is a Monte Carlo portfolio simulation result
type MonteCarloResult struct {
	SimulatedValues   []float64 `json:"simulated_values" msgpack:"simulated_values"`
	MeanReturn        float64   `json:"mean_return" msgpack:"mean_return"`
	StdReturn         float64   `json:"std_return" msgpack:"std_return"`
	MedianReturn      float64   `json:"median_return" msgpack:"median_return"`
	VaR95             float64   `json:"var_95" msgpack:"var_95"`
	VaR99             float64   `json:"var_99" msgpack:"var_99"`
	CVaR95            float64   `json:"cvar_95" msgpack:"cvar_95"`
	ProbabilityOfLoss float64   `json:"probability_of_loss" msgpack:"probability_of_loss"`
	ExpectedShortfall float64   `json:"expected_shortfall" msgpack:"expected_shortfall"`
	BestCase          float64   `json:"best_case" msgpack:"best_case"`
	WorstCase         float64   `json:"worst_case" msgpack:"worst_case"`
}

// RuinResult is a risk-of-ruin simulation result. ExpectedDaysToRuin is nil
// when no trial was ruined.
type RuinResult struct {
	RiskOfRuin         float64  `json:"risk_of_ruin"`
	ExpectedDaysToRuin *float64 `json:"expected_days_to_ruin"`
}

// DrawdownEventType identifies the kind of drawdown event
type DrawdownEventType string

const (
	EventWarning               DrawdownEventType = "warning"
	EventCritical              DrawdownEventType = "critical"
	EventKillSwitchActivated   DrawdownEventType = "kill_switch_activated"
	EventKillSwitchDeactivated DrawdownEventType = "kill_switch_deactivated"
	EventRecovery              DrawdownEventType = "recovery"
)

// DrawdownEvent is an immutable audit record of a drawdown transition or
// threshold crossing
type DrawdownEvent struct {
	EventType       DrawdownEventType `json:"event_type"`
	DrawdownPercent float64           `json:"drawdown_percent"`
	PeakValue       float64           `json:"peak_value"`
	CurrentValue    float64           `json:"current_value"`
	Timestamp       time.Time         `json:"timestamp"`
	Message         string            `json:"message"`
}

// DrawdownState is the current kill switch state. MaxDrawdownPercent is the
// worst drawdown observed since startup or the last peak reset, not the
// configured limit. Snapshots returned by GetState are copies, never live
// references.
type DrawdownState struct {
	Active                 bool       `json:"active"`
	PeakValue              float64    `json:"peak_value"`
	CurrentValue           float64    `json:"current_value"`
	CurrentDrawdownPercent float64    `json:"current_drawdown_percent"`
	MaxDrawdownPercent     float64    `json:"max_drawdown_percent"`
	ActivatedAt            *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt          *time.Time `json:"deactivated_at,omitempty"`
	Reason                 string     `json:"reason,omitempty"`
}
