package execution

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/domain"
)

// Repository persists execution records and the operation audit log in the
// ledger database
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new execution ledger repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "execution").Logger(),
	}
}

// Get returns the live record for an idempotency key. Expired records are
// treated as absent so a stale key can be retried.
func (r *Repository) Get(key string) (*Record, bool, error) {
	var rec Record
	var createdAt, updatedAt, expiresAt int64

	err := r.db.QueryRow(
		`SELECT idempotency_key, user_id, operation_name, status, result, error, created_at, updated_at, expires_at
		 FROM execution_records
		 WHERE idempotency_key = ? AND expires_at > ?`,
		key, time.Now().Unix(),
	).Scan(&rec.IdempotencyKey, &rec.UserID, &rec.OperationName, &rec.Status,
		&rec.Result, &rec.Error, &createdAt, &updatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load execution record: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	rec.ExpiresAt = time.Unix(expiresAt, 0)
	return &rec, true, nil
}

// MarkPending claims an idempotency key for a new execution attempt. An
// existing expired or failed row is reclaimed in place; the caller must
// hold the key's lock and have verified there is no live committed or
// pending record.
func (r *Repository) MarkPending(key string, userID int64, operationName string) error {
	now := time.Now()
	_, err := r.db.Exec(
		`INSERT INTO execution_records
		 (idempotency_key, user_id, operation_name, status, result, error, created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, NULL, '', ?, ?, ?)
		 ON CONFLICT(idempotency_key) DO UPDATE SET
		     user_id = excluded.user_id,
		     operation_name = excluded.operation_name,
		     status = excluded.status,
		     result = NULL,
		     error = '',
		     created_at = excluded.created_at,
		     updated_at = excluded.updated_at,
		     expires_at = excluded.expires_at`,
		key, userID, operationName, domain.ExecutionPending,
		now.Unix(), now.Unix(), now.Add(RecordTTL).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark execution record pending: %w", err)
	}
	return nil
}

// MarkCommitted stores the result and finalizes a pending record
func (r *Repository) MarkCommitted(key string, result []byte) error {
	return r.finalize(key, domain.ExecutionCommitted, result, "")
}

// MarkFailed finalizes a pending record with an error. Failed keys are
// retryable.
func (r *Repository) MarkFailed(key string, errMsg string) error {
	return r.finalize(key, domain.ExecutionFailed, nil, errMsg)
}

func (r *Repository) finalize(key string, status domain.ExecutionStatus, result []byte, errMsg string) error {
	res, err := r.db.Exec(
		`UPDATE execution_records
		 SET status = ?, result = ?, error = ?, updated_at = ?
		 WHERE idempotency_key = ? AND status = ?`,
		status, result, errMsg, time.Now().Unix(), key, domain.ExecutionPending,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize execution record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("execution record %s is not pending, refusing to overwrite", key)
	}
	return nil
}

// PurgeExpired deletes execution records past their expiry
func (r *Repository) PurgeExpired() (int64, error) {
	res, err := r.db.Exec(
		`DELETE FROM execution_records WHERE expires_at <= ?`, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired execution records: %w", err)
	}
	return res.RowsAffected()
}

// Audit appends one entry to the operation audit log. Audit failures are
// logged but never fail the operation they describe.
func (r *Repository) Audit(operationName string, userID int64, key string, success bool, errMsg, details string) {
	successInt := 0
	if success {
		successInt = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO operation_audit_log
		 (operation_name, user_id, idempotency_key, success, error, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		operationName, userID, key, successInt, errMsg, details, time.Now().Unix(),
	)
	if err != nil {
		r.log.Error().Err(err).Str("operation", operationName).Msg("Failed to write audit log entry")
	}
}
