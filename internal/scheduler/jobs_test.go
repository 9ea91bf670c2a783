package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/modules/calculations"
	"github.com/aristath/custodian/internal/modules/execution"
)

func memoryDB(t *testing.T, name string) *database.DB {
	t.Helper()
	path := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileStandard, Name: name})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPurgeExecutionRecordsJob(t *testing.T) {
	db := memoryDB(t, "ledger")
	repo := execution.NewRepository(db, zerolog.Nop())

	// One live record, one long expired
	require.NoError(t, repo.MarkPending("live", 1, "op"))
	_, err := db.Exec(
		`INSERT INTO execution_records
		 (idempotency_key, user_id, operation_name, status, error, created_at, updated_at, expires_at)
		 VALUES ('stale', 1, 'op', 'failed', '', 0, 0, 1)`,
	)
	require.NoError(t, err)

	job := NewPurgeExecutionRecordsJob(repo, nil, zerolog.Nop())
	assert.Equal(t, "purge_execution_records", job.Name())
	require.NoError(t, job.Run())

	_, found, err := repo.Get("live")
	require.NoError(t, err)
	assert.True(t, found)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM execution_records`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPurgeCacheJob(t *testing.T) {
	db := memoryDB(t, "cache")
	cache := calculations.NewCache(db, zerolog.Nop())

	require.NoError(t, cache.Set("var", "fresh", 1.5, time.Hour))
	require.NoError(t, cache.Set("var", "stale", 2.5, -time.Hour))

	job := NewPurgeCacheJob(cache, zerolog.Nop())
	require.NoError(t, job.Run())

	var out float64
	assert.True(t, cache.Get("var", "fresh", &out))
	assert.False(t, cache.Get("var", "stale", &out))
}

func TestWALCheckpointJob(t *testing.T) {
	job := NewWALCheckpointJob(map[string]*database.DB{
		"ledger": memoryDB(t, "ledger"),
		"absent": nil,
	}, zerolog.Nop())

	assert.NoError(t, job.Run())
}

func TestSchedulerRegistersAndRunsJobs(t *testing.T) {
	s := New(zerolog.Nop())

	db := memoryDB(t, "cache")
	cache := calculations.NewCache(db, zerolog.Nop())
	job := NewPurgeCacheJob(cache, zerolog.Nop())

	require.NoError(t, s.AddJob("@every 1h", job))
	assert.Error(t, s.AddJob("not a schedule", job))

	require.NoError(t, s.RunNow(job))
}
