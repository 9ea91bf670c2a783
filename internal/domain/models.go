// Package domain contains pure domain models and collaborator interfaces.
// This package has no infrastructure dependencies.
package domain

import "time"

// Side represents the direction of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Mode represents the trading mode a signal was generated in
type Mode string

const (
	ModeLive  Mode = "live"
	ModePaper Mode = "paper"
)

// TradeSignal is the input to the execution pipeline. It is owned by the
// caller and treated as read-only inside the pipeline.
type TradeSignal struct {
	Symbol  string         `json:"symbol"`
	Side    Side           `json:"side"`
	Amount  float64        `json:"amount"`
	Price   float64        `json:"price"`
	BotID   string         `json:"bot_id,omitempty"`
	UserID  int64          `json:"user_id"`
	Mode    Mode           `json:"mode"`
	OrderID string         `json:"order_id,omitempty"`
	TxData  *TxPayload     `json:"tx_data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// TxPayload is a constructed transaction payload ready for signing.
type TxPayload struct {
	To       string `json:"to"`
	Value    uint64 `json:"value"`
	Data     string `json:"data"`
	Gas      uint64 `json:"gas"`
	GasPrice uint64 `json:"gas_price"`
	Nonce    uint64 `json:"nonce"`
	ChainID  int64  `json:"chain_id"`
}

// RiskDecision is the outcome of the mandatory risk gate. An empty Reasons
// slice means the trade is allowed.
type RiskDecision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons"`
}

// ExecutionStatus is the lifecycle state of an execution record
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionCommitted ExecutionStatus = "committed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionResult is the outcome of a successfully executed trade signal
type ExecutionResult struct {
	Status   string         `json:"status"`
	TxHash   string         `json:"tx_hash"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WalletMeta holds chain-specific metadata needed to construct a payload
type WalletMeta struct {
	WalletID string `json:"wallet_id"`
	ChainID  int64  `json:"chain_id"`
	Address  string `json:"address"`
	Currency string `json:"currency"`
}

// PortfolioSnapshot is a point-in-time portfolio valuation
type PortfolioSnapshot struct {
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}
