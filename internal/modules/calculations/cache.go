// Package calculations provides a persistent cache for expensive risk
// calculations (multi-horizon VaR, Monte Carlo summaries).
package calculations

import (
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache TTLs per calculation kind
const (
	TTLVaR        = 1 * time.Hour
	TTLMonteCarlo = 6 * time.Hour
)

// Cache stores msgpack-encoded calculation results in the cache database.
// Results are keyed by kind plus a caller-provided hash of the inputs.
type Cache struct {
	db  *database.DB
	log zerolog.Logger
}

// NewCache creates a new calculation cache
func NewCache(db *database.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "calc_cache").Logger(),
	}
}

// Set stores a value under (kind, key) with the given TTL.
// The value is msgpack-encoded.
func (c *Cache) Set(kind, key string, value any, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	now := time.Now().Unix()
	_, err = c.db.Exec(
		`INSERT INTO calculation_cache (cache_key, payload, created_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   payload = excluded.payload,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		cacheKey(kind, key), payload, now, now+int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Get loads the value stored under (kind, key) into out.
// Returns false on miss or expiry.
func (c *Cache) Get(kind, key string, out any) bool {
	var payload []byte
	var expiresAt int64

	err := c.db.QueryRow(
		`SELECT payload, expires_at FROM calculation_cache WHERE cache_key = ?`,
		cacheKey(kind, key),
	).Scan(&payload, &expiresAt)
	if err != nil {
		return false
	}

	if time.Now().Unix() > expiresAt {
		return false
	}

	if err := msgpack.Unmarshal(payload, out); err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Msg("Failed to decode cache entry, treating as miss")
		return false
	}
	return true
}

// PurgeExpired deletes all expired cache entries and returns how many were
// removed. Run periodically from the maintenance job.
func (c *Cache) PurgeExpired() (int64, error) {
	res, err := c.db.Exec(
		`DELETE FROM calculation_cache WHERE expires_at < ?`, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.log.Debug().Int64("purged", n).Msg("Purged expired cache entries")
	}
	return n, nil
}

func cacheKey(kind, key string) string {
	return kind + ":" + key
}
