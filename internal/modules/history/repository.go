// Package history provides read access to recent portfolio history.
// It implements domain.PortfolioHistorySource for the risk gate and the
// drawdown monitor. Trade/snapshot writes are the ingestion side's
// responsibility; the write methods here exist for that ingestion path and
// for tests.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/custodian/pkg/formulas"
	"github.com/rs/zerolog"
)

// ScopeGlobal is the portfolio scope used when no per-user scoping applies
const ScopeGlobal = "global"

// Repository reads portfolio snapshots and cash balances from portfolio.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// ReturnSeries computes daily period returns from stored snapshots for the
// given scope, most recent last. Fewer than two snapshots yields an empty
// series, which the risk estimators treat as "no data".
func (r *Repository) ReturnSeries(ctx context.Context, scope string, lookbackDays int) ([]float64, error) {
	if scope == "" {
		scope = ScopeGlobal
	}
	if lookbackDays <= 0 {
		lookbackDays = 252
	}

	since := time.Now().AddDate(0, 0, -lookbackDays).Unix()
	rows, err := r.db.QueryContext(ctx,
		`SELECT value FROM portfolio_snapshots
		 WHERE scope = ? AND recorded_at >= ?
		 ORDER BY recorded_at ASC`,
		scope, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio snapshots: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return formulas.CalculateReturns(values), nil
}

// PortfolioValue returns the most recent snapshot value for the global scope.
// Returns 0 when no snapshots exist yet.
func (r *Repository) PortfolioValue(ctx context.Context) (float64, error) {
	var value float64
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM portfolio_snapshots
		 WHERE scope = ?
		 ORDER BY recorded_at DESC LIMIT 1`,
		ScopeGlobal,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query portfolio value: %w", err)
	}
	return value, nil
}

// CashBalance returns the available cash balance for a user.
// Returns 0 if no balance exists (not an error).
func (r *Repository) CashBalance(ctx context.Context, userID int64) (float64, error) {
	var balance float64
	err := r.db.QueryRowContext(ctx,
		`SELECT balance FROM cash_balances WHERE user_id = ?`, userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query cash balance: %w", err)
	}
	return balance, nil
}

// RecordSnapshot appends a portfolio valuation for the given scope
func (r *Repository) RecordSnapshot(ctx context.Context, scope string, value float64, at time.Time) error {
	if scope == "" {
		scope = ScopeGlobal
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portfolio_snapshots (scope, value, recorded_at) VALUES (?, ?, ?)`,
		scope, value, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return nil
}

// SetCashBalance upserts the cash balance for a user
func (r *Repository) SetCashBalance(ctx context.Context, userID int64, balance float64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cash_balances (user_id, balance, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   balance = excluded.balance,
		   updated_at = excluded.updated_at`,
		userID, balance, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set cash balance: %w", err)
	}
	return nil
}
