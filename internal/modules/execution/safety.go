package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
)

// SafetyService runs structural and balance checks on a signal before any
// risk evaluation or signing happens
type SafetyService struct {
	history domain.PortfolioHistorySource
	// maxPositionValue caps a single trade's notional value; 0 disables
	// the cap.
	maxPositionValue float64
	log              zerolog.Logger
}

// NewSafetyService creates the pre-trade safety checker
func NewSafetyService(history domain.PortfolioHistorySource, maxPositionValue float64, log zerolog.Logger) *SafetyService {
	return &SafetyService{
		history:          history,
		maxPositionValue: maxPositionValue,
		log:              log.With().Str("service", "trade_safety").Logger(),
	}
}

// ValidateSignal returns a ValidationError listing every failed check.
// No state is mutated here.
func (s *SafetyService) ValidateSignal(ctx context.Context, signal domain.TradeSignal) error {
	var reasons []string

	if strings.TrimSpace(signal.Symbol) == "" {
		reasons = append(reasons, "symbol is required")
	}
	if signal.Side != domain.SideBuy && signal.Side != domain.SideSell {
		reasons = append(reasons, fmt.Sprintf("side must be buy or sell, got %q", signal.Side))
	}
	if signal.Amount <= 0 {
		reasons = append(reasons, "amount must be positive")
	}
	if signal.Price < 0 {
		reasons = append(reasons, "price cannot be negative")
	}

	notional := signal.Amount * signal.Price
	if s.maxPositionValue > 0 && notional > s.maxPositionValue {
		reasons = append(reasons, fmt.Sprintf("trade value %.2f exceeds position limit %.2f", notional, s.maxPositionValue))
	}

	// Balance is only enforced for live buys; paper trades spend nothing.
	if signal.Side == domain.SideBuy && signal.Mode == domain.ModeLive && notional > 0 && s.history != nil {
		balance, err := s.history.CashBalance(ctx, signal.UserID)
		if err != nil {
			s.log.Warn().Err(err).Int64("user_id", signal.UserID).Msg("Failed to read cash balance, skipping balance check")
		} else if notional > balance {
			reasons = append(reasons, fmt.Sprintf("insufficient balance: need %.2f, have %.2f", notional, balance))
		}
	}

	if len(reasons) > 0 {
		return &domain.ValidationError{Reasons: reasons}
	}
	return nil
}
