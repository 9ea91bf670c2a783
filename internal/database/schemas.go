package database

// schemas maps database names to their embedded schema definitions.
// All statements are idempotent so Migrate can run on every startup.
var schemas = map[string]string{
	"ledger":    ledgerSchema,
	"portfolio": portfolioSchema,
	"cache":     cacheSchema,
}

// ledgerSchema defines the execution audit trail.
// execution_records is append-once: a key transitions pending -> committed or
// pending -> failed exactly once and is never re-mutated after a terminal state.
const ledgerSchema = `
CREATE TABLE IF NOT EXISTS execution_records (
    idempotency_key TEXT PRIMARY KEY,
    user_id         INTEGER NOT NULL,
    operation_name  TEXT NOT NULL,
    status          TEXT NOT NULL CHECK (status IN ('pending', 'committed', 'failed')),
    result          BLOB,
    error           TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    expires_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_execution_records_expires
    ON execution_records(expires_at);

CREATE TABLE IF NOT EXISTS operation_audit_log (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    operation_name TEXT NOT NULL,
    user_id        INTEGER NOT NULL,
    idempotency_key TEXT,
    success        INTEGER NOT NULL,
    error          TEXT,
    details        TEXT,
    created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_user
    ON operation_audit_log(user_id, created_at);
`

// portfolioSchema holds read-only history consumed by the risk gate:
// daily portfolio valuations and cash balances.
const portfolioSchema = `
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    scope       TEXT NOT NULL DEFAULT 'global',
    value       REAL NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_scope_time
    ON portfolio_snapshots(scope, recorded_at);

CREATE TABLE IF NOT EXISTS cash_balances (
    user_id    INTEGER PRIMARY KEY,
    balance    REAL NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
`

// cacheSchema holds ephemeral msgpack-encoded calculation results.
const cacheSchema = `
CREATE TABLE IF NOT EXISTS calculation_cache (
    cache_key  TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calc_cache_expires
    ON calculation_cache(expires_at);
`
