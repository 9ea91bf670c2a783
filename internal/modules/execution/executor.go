package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
)

// ErrDuplicateInFlight means another execution with the same idempotency
// key is still pending. The caller must wait for that attempt to finish
// rather than re-execute.
var ErrDuplicateInFlight = errors.New("execution already in progress for this idempotency key")

// lockStripes is the number of key lock stripes. Unrelated keys rarely
// share a stripe, so independent trades do not serialize behind one lock.
const lockStripes = 64

// TxContext collects compensating actions while an operation runs. On
// failure they execute in reverse registration order.
type TxContext struct {
	compensations []func(ctx context.Context) error
}

// RegisterRollback adds a compensating action for work the operation has
// already performed
func (t *TxContext) RegisterRollback(fn func(ctx context.Context) error) {
	t.compensations = append(t.compensations, fn)
}

// Operation is a side-effecting unit of work guarded by an idempotency key
type Operation func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error)

// Executor guarantees at-most-one successful execution per idempotency key,
// with compensating rollback and a retryable failed state.
type Executor struct {
	repo  *Repository
	locks [lockStripes]sync.Mutex
	log   zerolog.Logger
}

// NewExecutor creates an idempotent executor over the execution ledger
func NewExecutor(repo *Repository, log zerolog.Logger) *Executor {
	return &Executor{
		repo: repo,
		log:  log.With().Str("service", "executor").Logger(),
	}
}

func (e *Executor) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &e.locks[h.Sum32()%lockStripes]
}

// ExecuteWithRollback runs op at most once per idempotency key.
// A committed key replays the stored result without re-running op. A
// pending key is a concurrent duplicate and is rejected. A failed or
// expired key is retried. On failure the registered compensations run in
// reverse order, the key is marked failed and the operation error is
// propagated. details describe the operation in the audit log.
func (e *Executor) ExecuteWithRollback(ctx context.Context, op Operation, operationName string, userID int64, details map[string]any, key string) (*domain.ExecutionResult, error) {
	if key == "" {
		return nil, errors.New("idempotency key is required")
	}

	// The lookup-and-mark-pending sequence must be atomic per key.
	lock := e.lockFor(key)
	lock.Lock()

	record, found, err := e.repo.Get(key)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if found {
		switch record.Status {
		case domain.ExecutionCommitted:
			lock.Unlock()
			return e.replay(record)
		case domain.ExecutionPending:
			lock.Unlock()
			e.log.Warn().Str("idempotency_key", key).Msg("Rejected concurrent duplicate execution")
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInFlight, key)
		case domain.ExecutionFailed:
			e.log.Info().Str("idempotency_key", key).Msg("Retrying previously failed execution")
		}
	}

	if err := e.repo.MarkPending(key, userID, operationName); err != nil {
		lock.Unlock()
		return nil, err
	}
	lock.Unlock()

	tx := &TxContext{}
	result, opErr := e.run(ctx, op, tx)
	if opErr != nil {
		e.rollback(tx)
		if err := e.repo.MarkFailed(key, opErr.Error()); err != nil {
			e.log.Error().Err(err).Str("idempotency_key", key).Msg("Failed to mark execution record failed")
		}
		e.repo.Audit(operationName, userID, key, false, opErr.Error(), encodeAuditDetails(details, ""))
		return nil, opErr
	}

	stored, commitErr := json.Marshal(result)
	if commitErr == nil {
		commitErr = e.repo.MarkCommitted(key, stored)
	}
	if commitErr != nil {
		// The operation already ran. Mark the record failed so the key is
		// retryable rather than stuck pending until its TTL expires.
		commitErr = fmt.Errorf("operation succeeded but the result could not be committed (side effect may have completed): %w", commitErr)
		e.log.Error().Err(commitErr).Str("idempotency_key", key).Msg("Failed to commit execution result")
		if err := e.repo.MarkFailed(key, commitErr.Error()); err != nil {
			e.log.Error().Err(err).Str("idempotency_key", key).Msg("Failed to mark execution record failed after commit error")
		}
		e.repo.Audit(operationName, userID, key, false, commitErr.Error(), encodeAuditDetails(details, result.TxHash))
		return nil, commitErr
	}
	e.repo.Audit(operationName, userID, key, true, "", encodeAuditDetails(details, result.TxHash))
	return result, nil
}

// encodeAuditDetails merges the operation details with the transaction hash
// into the JSON blob stored in the audit log
func encodeAuditDetails(details map[string]any, txHash string) string {
	if len(details) == 0 && txHash == "" {
		return ""
	}
	merged := make(map[string]any, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	if txHash != "" {
		merged["tx_hash"] = txHash
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return txHash
	}
	return string(encoded)
}

// run invokes the operation, converting a deadline that fired mid-call into
// the operation error so the ledger entry cannot leak pending
func (e *Executor) run(ctx context.Context, op Operation, tx *TxContext) (*domain.ExecutionResult, error) {
	result, err := op(ctx, tx)
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if result == nil {
		return nil, errors.New("operation returned no result")
	}
	return result, nil
}

// rollback executes compensations in reverse registration order. Each runs
// on a fresh context so a cancelled execution can still compensate.
func (e *Executor) rollback(tx *TxContext) {
	for i := len(tx.compensations) - 1; i >= 0; i-- {
		if err := tx.compensations[i](context.Background()); err != nil {
			e.log.Error().Err(err).Int("compensation", i).Msg("Compensating action failed")
		}
	}
}

func (e *Executor) replay(record *Record) (*domain.ExecutionResult, error) {
	var result domain.ExecutionResult
	if err := json.Unmarshal(record.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result for key %s: %w", record.IdempotencyKey, err)
	}
	e.log.Info().Str("idempotency_key", record.IdempotencyKey).Msg("Replaying committed execution result")
	return &result, nil
}
