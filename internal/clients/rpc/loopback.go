package rpc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Loopback is a broadcaster that never leaves the process. It is wired
// when no RPC endpoint is configured so the full pipeline, idempotency
// ledger included, can run without a node.
type Loopback struct {
	log zerolog.Logger
}

// NewLoopback creates a loopback broadcaster
func NewLoopback(log zerolog.Logger) *Loopback {
	return &Loopback{log: log.With().Str("client", "broadcast_loopback").Logger()}
}

// Submit fabricates a transaction hash locally.
func (l *Loopback) Submit(ctx context.Context, chainID int64, signedPayload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash := fmt.Sprintf("loopback_tx_%s", uuid.NewString())
	l.log.Info().
		Int64("chain_id", chainID).
		Str("tx_hash", hash).
		Msg("Loopback broadcast, no node configured")
	return hash, nil
}
