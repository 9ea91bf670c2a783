package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
)

// MockTxHashPrefix marks transaction identifiers synthesized by dry runs
const MockTxHashPrefix = "mock_tx_hash_"

// riskGate is the mandatory pre-trade decision surface
type riskGate interface {
	ValidateTrade(ctx context.Context, userID int64, signal domain.TradeSignal) []string
}

// addressResolver is the read-only half of the custody vault
type addressResolver interface {
	GetAddress(ctx context.Context, userID int64, walletID string) (string, error)
}

// transactionSigner is the signing boundary consumed by the pipeline
type transactionSigner interface {
	SignTransaction(ctx context.Context, userID int64, walletID string, payload *domain.TxPayload, dryRun bool) ([]byte, error)
}

// Pipeline turns a trade signal into a submitted or rejected transaction:
// safety checks, risk gate, address resolution, signing and broadcast, all
// wrapped in an idempotent execution.
type Pipeline struct {
	safety      *SafetyService
	risk        riskGate
	vault       addressResolver
	signer      transactionSigner
	broadcaster domain.Broadcaster
	executor    *Executor
	events      *events.Manager
	// ioTimeout bounds each external call: address lookup, signing and
	// broadcast.
	ioTimeout time.Duration
	log       zerolog.Logger
}

// NewPipeline creates the trade execution pipeline
func NewPipeline(
	safety *SafetyService,
	risk riskGate,
	vault addressResolver,
	signer transactionSigner,
	broadcaster domain.Broadcaster,
	executor *Executor,
	evts *events.Manager,
	ioTimeout time.Duration,
	log zerolog.Logger,
) *Pipeline {
	if ioTimeout <= 0 {
		ioTimeout = 30 * time.Second
	}
	return &Pipeline{
		safety:      safety,
		risk:        risk,
		vault:       vault,
		signer:      signer,
		broadcaster: broadcaster,
		executor:    executor,
		events:      evts,
		ioTimeout:   ioTimeout,
		log:         log.With().Str("service", "execution_pipeline").Logger(),
	}
}

// ExecuteTradeSignal runs the full gated execution flow. Signing only
// happens after every gate passes; broadcast is the single irrevocable
// step, performed last and at most once per committed idempotency key.
func (p *Pipeline) ExecuteTradeSignal(ctx context.Context, signal domain.TradeSignal, userID int64, walletID string, chainID int64, dryRun bool, idempotencyKey string) (*domain.ExecutionResult, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
		p.log.Warn().
			Str("generated_key", idempotencyKey).
			Msg("No idempotency key supplied, generated one; retries will not be deduplicated")
	}

	details := map[string]any{
		"symbol":    signal.Symbol,
		"side":      string(signal.Side),
		"amount":    signal.Amount,
		"wallet_id": walletID,
		"chain_id":  chainID,
		"dry_run":   dryRun,
	}
	result, err := p.executor.ExecuteWithRollback(ctx, func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		return p.execute(ctx, signal, userID, walletID, chainID, dryRun, idempotencyKey)
	}, "execute_trade_signal", userID, details, idempotencyKey)
	if err != nil {
		p.emitRejection(signal, userID, err)
		return nil, err
	}

	if p.events != nil {
		p.events.Emit(events.TradeExecuted, "execution", map[string]any{
			"symbol":  signal.Symbol,
			"side":    string(signal.Side),
			"amount":  signal.Amount,
			"tx_hash": result.TxHash,
			"dry_run": dryRun,
		})
	}
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, signal domain.TradeSignal, userID int64, walletID string, chainID int64, dryRun bool, idempotencyKey string) (*domain.ExecutionResult, error) {
	if err := p.safety.ValidateSignal(ctx, signal); err != nil {
		return nil, err
	}

	if reasons := p.risk.ValidateTrade(ctx, userID, signal); len(reasons) > 0 {
		return nil, &domain.ValidationError{Reasons: reasons}
	}

	address, err := p.resolveAddress(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}

	payload := signal.TxData
	if payload == nil {
		// Safe default: a zero-value transfer for simulation paths.
		payload = &domain.TxPayload{
			To:      address,
			Value:   0,
			ChainID: chainID,
		}
	}

	signed, err := p.sign(ctx, userID, walletID, payload, dryRun)
	if err != nil {
		return nil, err
	}

	var txHash string
	if dryRun {
		txHash = MockTxHashPrefix + uuid.NewString()
	} else {
		txHash, err = p.broadcast(ctx, chainID, signed, idempotencyKey)
		if err != nil {
			return nil, err
		}
	}

	p.log.Info().
		Str("symbol", signal.Symbol).
		Str("side", string(signal.Side)).
		Float64("amount", signal.Amount).
		Str("tx_hash", txHash).
		Bool("dry_run", dryRun).
		Msg("Trade signal executed")

	return &domain.ExecutionResult{
		Status: "submitted",
		TxHash: txHash,
		Metadata: map[string]any{
			"symbol":    signal.Symbol,
			"side":      string(signal.Side),
			"amount":    signal.Amount,
			"price":     signal.Price,
			"wallet_id": walletID,
			"chain_id":  chainID,
			"address":   address,
			"dry_run":   dryRun,
		},
	}, nil
}

func (p *Pipeline) resolveAddress(ctx context.Context, userID int64, walletID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ioTimeout)
	defer cancel()

	address, err := p.vault.GetAddress(ctx, userID, walletID)
	if err != nil {
		var custodyErr *domain.CustodyError
		if errors.As(err, &custodyErr) {
			return "", err
		}
		return "", &domain.CustodyError{Op: "get_address", Err: err}
	}
	return address, nil
}

func (p *Pipeline) sign(ctx context.Context, userID int64, walletID string, payload *domain.TxPayload, dryRun bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ioTimeout)
	defer cancel()
	return p.signer.SignTransaction(ctx, userID, walletID, payload, dryRun)
}

func (p *Pipeline) broadcast(ctx context.Context, chainID int64, signed []byte, idempotencyKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ioTimeout)
	defer cancel()

	txHash, err := p.broadcaster.Submit(ctx, chainID, string(signed))
	if err != nil {
		retryable := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
		return "", &domain.SubmissionError{Key: idempotencyKey, Err: err, Retryable: retryable}
	}
	return txHash, nil
}

func (p *Pipeline) emitRejection(signal domain.TradeSignal, userID int64, err error) {
	if p.events == nil {
		return
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		p.events.Emit(events.TradeRejected, "execution", map[string]any{
			"symbol":  signal.Symbol,
			"user_id": userID,
			"reasons": validationErr.Reasons,
		})
		return
	}
	p.events.EmitError("execution", err, map[string]any{
		"symbol":  signal.Symbol,
		"user_id": userID,
	})
}
