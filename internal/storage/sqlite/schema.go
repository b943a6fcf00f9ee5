// Package sqlite provides the SQLite implementation of the storage
// interfaces. It is the default backend: a single-file database with WAL
// mode for read concurrency and a single writer connection.
package sqlite

// Schema contains the SQL statements to create the database schema.
// All statements are idempotent so the schema can be applied on every open.
const Schema = `
-- Records table: core memory storage
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    owner_agent TEXT NOT NULL,
    content TEXT NOT NULL,
    fact_hash TEXT NOT NULL,

    -- Embedding stored inline as a little-endian float32 BLOB.
    -- NULL while the embedding provider is unavailable; such rows are
    -- excluded from the vector index until backfilled.
    embedding BLOB,
    dimension INTEGER,

    -- Lifecycle
    status TEXT NOT NULL DEFAULT 'active',
    superseded_by TEXT,

    -- Retrieval signals
    importance REAL NOT NULL DEFAULT 0.5,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMP,
    decayed_at TIMESTAMP,

    -- Cross-agent visibility
    visibility TEXT NOT NULL DEFAULT 'private',
    source_agent TEXT,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Scope queries: exact-duplicate lookup and per-scope listing
CREATE INDEX IF NOT EXISTS idx_records_scope ON records(visibility, owner_agent, status);
CREATE INDEX IF NOT EXISTS idx_records_hash ON records(fact_hash);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_superseded_by ON records(superseded_by);

-- Backfill sweep: active rows still missing an embedding
CREATE INDEX IF NOT EXISTS idx_records_missing_embedding
    ON records(created_at) WHERE embedding IS NULL AND status = 'active';

-- Conflict audit trail: append-only record of resolution outcomes
CREATE TABLE IF NOT EXISTS conflict_audit (
    id TEXT PRIMARY KEY,
    owner_agent TEXT NOT NULL,
    winning_id TEXT NOT NULL,
    losing_id TEXT NOT NULL,
    similarity REAL NOT NULL,
    resolution TEXT NOT NULL,
    reason TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_conflict_audit_owner ON conflict_audit(owner_agent, created_at);

-- Maintenance runs: append-only summaries of completed cycles
CREATE TABLE IF NOT EXISTS maintenance_runs (
    id TEXT PRIMARY KEY,
    run_type TEXT NOT NULL,
    archived_count INTEGER NOT NULL DEFAULT 0,
    consolidated_count INTEGER NOT NULL DEFAULT 0,
    decayed_count INTEGER NOT NULL DEFAULT 0,
    backfilled_count INTEGER NOT NULL DEFAULT 0,
    details TEXT,
    started_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_maintenance_runs_created_at ON maintenance_runs(created_at);
`
