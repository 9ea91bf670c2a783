package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryDB opens a uniquely named shared in-memory database so each test gets
// isolated state while multiple connections within a test see the same data.
func memoryDB(t *testing.T, name string) *DB {
	t.Helper()
	path := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := New(Config{Path: path, Profile: ProfileLedger, Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateLedger(t *testing.T) {
	db := memoryDB(t, "ledger")
	require.NoError(t, db.Migrate())

	// Migrate twice must be a no-op
	require.NoError(t, db.Migrate())

	_, err := db.Exec(
		`INSERT INTO execution_records (idempotency_key, user_id, operation_name, status, created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"key-1", 1, "trade_execution", "pending", 0, 0, 0,
	)
	require.NoError(t, err)
}

func TestMigrateRejectsInvalidStatus(t *testing.T) {
	db := memoryDB(t, "ledger")
	require.NoError(t, db.Migrate())

	_, err := db.Exec(
		`INSERT INTO execution_records (idempotency_key, user_id, operation_name, status, created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"key-1", 1, "trade_execution", "bogus", 0, 0, 0,
	)
	assert.Error(t, err)
}

func TestMigrateUnknownNameIsNoop(t *testing.T) {
	db := memoryDB(t, "mystery")
	assert.NoError(t, db.Migrate())
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := memoryDB(t, "portfolio")
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, execErr := tx.Exec(
			`INSERT INTO portfolio_snapshots (scope, value, recorded_at) VALUES ('global', 100, 0)`,
		); execErr != nil {
			return execErr
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM portfolio_snapshots`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransactionCommits(t *testing.T) {
	db := memoryDB(t, "portfolio")
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec(
			`INSERT INTO portfolio_snapshots (scope, value, recorded_at) VALUES ('global', 100, 0)`,
		)
		return execErr
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM portfolio_snapshots`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestHealthCheck(t *testing.T) {
	db := memoryDB(t, "ledger")
	require.NoError(t, db.Migrate())
	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}
