package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/custodian/internal/domain"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(ledgerRepo(t), zerolog.Nop())
}

func okResult(hash string) *domain.ExecutionResult {
	return &domain.ExecutionResult{Status: "submitted", TxHash: hash}
}

func TestExecutor_CommittedKeyReplaysWithoutRerun(t *testing.T) {
	e := newTestExecutor(t)

	calls := 0
	op := func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		calls++
		return okResult("0xfirst"), nil
	}

	first, err := e.ExecuteWithRollback(context.Background(), op, "op", 1, nil, "dup-key")
	require.NoError(t, err)

	second, err := e.ExecuteWithRollback(context.Background(), op, "op", 1, nil, "dup-key")
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "operation must run exactly once per committed key")
	assert.Equal(t, first.TxHash, second.TxHash)
	assert.Equal(t, first.Status, second.Status)
}

func TestExecutor_PendingKeyIsRejected(t *testing.T) {
	e := newTestExecutor(t)
	require.NoError(t, e.repo.MarkPending("inflight", 1, "op"))

	_, err := e.ExecuteWithRollback(context.Background(), func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		t.Fatal("operation must not run while a duplicate is pending")
		return nil, nil
	}, "op", 1, nil, "inflight")

	assert.ErrorIs(t, err, ErrDuplicateInFlight)
}

func TestExecutor_FailedKeyIsRetryable(t *testing.T) {
	e := newTestExecutor(t)

	attempts := 0
	op := func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("network down")
		}
		return okResult("0xretry"), nil
	}

	_, err := e.ExecuteWithRollback(context.Background(), op, "op", 1, nil, "retry-key")
	require.Error(t, err)

	rec, found, err := e.repo.Get("retry-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.ExecutionFailed, rec.Status)

	result, err := e.ExecuteWithRollback(context.Background(), op, "op", 1, nil, "retry-key")
	require.NoError(t, err)
	assert.Equal(t, "0xretry", result.TxHash)
	assert.Equal(t, 2, attempts)
}

func TestExecutor_RollbackRunsInReverseOrder(t *testing.T) {
	e := newTestExecutor(t)

	var order []string
	_, err := e.ExecuteWithRollback(context.Background(), func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		tx.RegisterRollback(func(ctx context.Context) error {
			order = append(order, "first")
			return nil
		})
		tx.RegisterRollback(func(ctx context.Context) error {
			order = append(order, "second")
			return errors.New("compensation hiccup")
		})
		tx.RegisterRollback(func(ctx context.Context) error {
			order = append(order, "third")
			return nil
		})
		return nil, errors.New("operation failed")
	}, "op", 1, nil, "rollback-key")

	require.Error(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, order,
		"compensations run LIFO and a failing one does not stop the rest")
}

func TestExecutor_NoRollbackOnSuccess(t *testing.T) {
	e := newTestExecutor(t)

	compensated := false
	_, err := e.ExecuteWithRollback(context.Background(), func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		tx.RegisterRollback(func(ctx context.Context) error {
			compensated = true
			return nil
		})
		return okResult("0xok"), nil
	}, "op", 1, nil, "success-key")

	require.NoError(t, err)
	assert.False(t, compensated)
}

func TestExecutor_TimeoutMarksFailedNotPending(t *testing.T) {
	e := newTestExecutor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.ExecuteWithRollback(ctx, func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, "op", 1, nil, "timeout-key")

	require.ErrorIs(t, err, context.DeadlineExceeded)

	rec, found, getErr := e.repo.Get("timeout-key")
	require.NoError(t, getErr)
	require.True(t, found)
	assert.Equal(t, domain.ExecutionFailed, rec.Status, "a timed-out execution must never leak a pending key")

	// The same key retries cleanly with a healthy operation
	result, err := e.ExecuteWithRollback(context.Background(), func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		return okResult("0xafter"), nil
	}, "op", 1, nil, "timeout-key")
	require.NoError(t, err)
	assert.Equal(t, "0xafter", result.TxHash)
}

func TestExecutor_DeadlineAfterSuccessIsFailure(t *testing.T) {
	e := newTestExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())

	_, err := e.ExecuteWithRollback(ctx, func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		cancel()
		return okResult("0xlate"), nil
	}, "op", 1, nil, "late-key")

	require.ErrorIs(t, err, context.Canceled,
		"a result produced after cancellation cannot be trusted as delivered")
}

func TestExecutor_AuditRecordsOperationDetails(t *testing.T) {
	e := newTestExecutor(t)

	details := map[string]any{"symbol": "ETH/USDT", "side": "buy", "amount": 2.5}
	_, err := e.ExecuteWithRollback(context.Background(), func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		return okResult("0xaudit"), nil
	}, "execute_trade_signal", 9, details, "audit-key")
	require.NoError(t, err)

	var stored string
	require.NoError(t, e.repo.db.QueryRow(
		`SELECT details FROM operation_audit_log WHERE idempotency_key = ?`, "audit-key",
	).Scan(&stored))
	assert.JSONEq(t, `{"symbol":"ETH/USDT","side":"buy","amount":2.5,"tx_hash":"0xaudit"}`, stored)
}

func TestExecutor_UnencodableResultMarksFailed(t *testing.T) {
	e := newTestExecutor(t)

	// NaN has no JSON encoding, so storing the result fails after the
	// operation itself has already run.
	_, err := e.ExecuteWithRollback(context.Background(), func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		return &domain.ExecutionResult{
			Status:   "submitted",
			TxHash:   "0xburied",
			Metadata: map[string]any{"slippage": math.NaN()},
		}, nil
	}, "op", 1, nil, "commit-fail-key")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "side effect may have completed")

	rec, found, getErr := e.repo.Get("commit-fail-key")
	require.NoError(t, getErr)
	require.True(t, found)
	assert.Equal(t, domain.ExecutionFailed, rec.Status, "a commit failure must not leave the key pending")

	// The key is immediately retryable
	result, err := e.ExecuteWithRollback(context.Background(), func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		return okResult("0xclean"), nil
	}, "op", 1, nil, "commit-fail-key")
	require.NoError(t, err)
	assert.Equal(t, "0xclean", result.TxHash)
}

func TestExecutor_EmptyKeyRejected(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.ExecuteWithRollback(context.Background(), func(ctx context.Context, tx *TxContext) (*domain.ExecutionResult, error) {
		return okResult("0x"), nil
	}, "op", 1, nil, "")

	assert.Error(t, err)
}
