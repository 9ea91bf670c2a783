package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/calculations"
	"github.com/aristath/custodian/internal/modules/execution"
)

// PurgeExecutionRecordsJob removes execution ledger records past their 24h
// expiry so stale idempotency keys stop guarding retries
type PurgeExecutionRecordsJob struct {
	repo   *execution.Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewPurgeExecutionRecordsJob creates the ledger cleanup job
func NewPurgeExecutionRecordsJob(repo *execution.Repository, evts *events.Manager, log zerolog.Logger) *PurgeExecutionRecordsJob {
	return &PurgeExecutionRecordsJob{
		repo:   repo,
		events: evts,
		log:    log.With().Str("job", "purge_execution_records").Logger(),
	}
}

// Name returns the job name
func (j *PurgeExecutionRecordsJob) Name() string {
	return "purge_execution_records"
}

// Run executes the ledger cleanup job
func (j *PurgeExecutionRecordsJob) Run() error {
	purged, err := j.repo.PurgeExpired()
	if err != nil {
		return err
	}
	if purged > 0 {
		j.log.Info().Int64("purged", purged).Msg("Purged expired execution records")
		if j.events != nil {
			j.events.Emit(events.ExecutionRecordExpired, "execution", map[string]any{
				"purged": purged,
			})
		}
	}
	return nil
}

// PurgeCacheJob removes expired calculation cache entries
type PurgeCacheJob struct {
	cache *calculations.Cache
	log   zerolog.Logger
}

// NewPurgeCacheJob creates the cache cleanup job
func NewPurgeCacheJob(cache *calculations.Cache, log zerolog.Logger) *PurgeCacheJob {
	return &PurgeCacheJob{
		cache: cache,
		log:   log.With().Str("job", "purge_cache").Logger(),
	}
}

// Name returns the job name
func (j *PurgeCacheJob) Name() string {
	return "purge_cache"
}

// Run executes the cache cleanup job
func (j *PurgeCacheJob) Run() error {
	purged, err := j.cache.PurgeExpired()
	if err != nil {
		return err
	}
	if purged > 0 {
		j.log.Debug().Int64("purged", purged).Msg("Purged expired cache entries")
	}
	return nil
}

// WALCheckpointJob passively checkpoints every database so WAL files do not
// grow without bound during long uptimes
type WALCheckpointJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates the WAL checkpoint job
func NewWALCheckpointJob(databases map[string]*database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		databases: databases,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run executes the WAL checkpoint job
func (j *WALCheckpointJob) Run() error {
	for name, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.WALCheckpoint("PASSIVE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}
	return nil
}
