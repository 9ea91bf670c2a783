package domain

import "context"

// Broadcaster submits a signed payload to the external network.
// No retry logic lives behind this interface - retries belong to the caller
// via idempotency keys.
type Broadcaster interface {
	// Submit broadcasts a signed raw transaction and returns its hash.
	// Implementations must honor ctx deadlines; a timeout is a failure,
	// never a success.
	Submit(ctx context.Context, chainID int64, signedPayload string) (string, error)
}

// PortfolioHistorySource provides read-only access to recent portfolio
// history. Used for the VaR gate and balance checks; writes are the
// caller's responsibility.
type PortfolioHistorySource interface {
	// ReturnSeries returns daily period returns for the given scope,
	// most recent last. An empty series is a valid "no data" answer.
	ReturnSeries(ctx context.Context, scope string, lookbackDays int) ([]float64, error)

	// PortfolioValue returns the current total portfolio value.
	PortfolioValue(ctx context.Context) (float64, error)

	// CashBalance returns the available cash balance for a user.
	CashBalance(ctx context.Context, userID int64) (float64, error)
}

// WalletDirectory maps (userID, walletID) to chain-specific metadata
type WalletDirectory interface {
	ChainMetadata(ctx context.Context, userID int64, walletID string) (*WalletMeta, error)
}

// BotStopper halts all automated trading. Invoked by the drawdown kill
// switch on activation; failures are logged and swallowed so they never
// block the state transition.
type BotStopper interface {
	StopAllBots(reason string) error
}
