// Package postgres provides the PostgreSQL implementation of the storage
// interfaces. When the pgvector extension is available, neighbor queries
// run server-side against an ivfflat cosine index; otherwise embeddings
// are served from the BYTEA column and neighbor search stays in-process.
package postgres

// Schema contains the SQL statements to create the database schema.
// All statements are idempotent so the schema can be applied on every open.
const Schema = `
-- Records table: core memory storage
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    owner_agent TEXT NOT NULL,
    content TEXT NOT NULL,
    fact_hash TEXT NOT NULL,

    -- Embedding stored as a little-endian float32 BYTEA for portability;
    -- mirrored into embedding_vec when pgvector is available.
    embedding BYTEA,
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

CREATE INDEX IF NOT EXISTS idx_records_scope ON records(visibility, owner_agent, status);
CREATE INDEX IF NOT EXISTS idx_records_hash ON records(fact_hash);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_superseded_by ON records(superseded_by);
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
    details JSONB,
    started_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_maintenance_runs_created_at ON maintenance_runs(created_at);
`

// MigrationPgvector contains SQL to add pgvector support to the records
// table. This migration is only applied when the vector extension is
// available. Safe to run multiple times.
const MigrationPgvector = `
-- Add embedding_vec column if it doesn't already exist.
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'records' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE records ADD COLUMN embedding_vec vector;
    END IF;
END
$$;

-- Create ivfflat index for approximate nearest-neighbor vector search.
-- Lists = 100 is a good default for up to ~1M vectors; tune upward for larger datasets.
-- IMPORTANT: ivfflat requires at least one row to exist; we guard with a DO block.
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_records_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM records WHERE embedding_vec IS NOT NULL LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_records_vec_cosine ON records USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
