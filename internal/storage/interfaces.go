// Package storage provides composable storage interfaces for the agent
// memory system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Both backends (SQLite
// and PostgreSQL) implement RecordStore; the engine never depends on a
// concrete backend.
package storage

import (
	"context"
	"time"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// RecordStore provides persistence for memory records, the conflict audit
// trail, and maintenance run summaries.
type RecordStore interface {
	// Insert creates a new record. Returns ErrInvalidInput if a record
	// with the same ID already exists.
	Insert(ctx context.Context, record *types.MemoryRecord) error

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*types.MemoryRecord, error)

	// Update rewrites a record's mutable fields (content never changes;
	// embedding, status, importance, and access bookkeeping do).
	// Returns ErrNotFound if the record doesn't exist.
	Update(ctx context.Context, record *types.MemoryRecord) error

	// CasStatus atomically transitions a record's status from one value to
	// another, optionally setting superseded_by. It returns ErrCasConflict
	// when the record is no longer in the expected status, which signals a
	// concurrent writer won the race.
	CasStatus(ctx context.Context, id string, from, to types.RecordStatus, supersededBy string) error

	// TouchAccess atomically increments access_count, sets
	// last_accessed_at, and applies a clamped importance boost. It is a
	// single UPDATE so concurrent readers never block each other.
	// Returns ErrNotFound if the record doesn't exist.
	TouchAccess(ctx context.Context, id string, boost float64) error

	// FindActiveByHash returns the active record with the given fact hash
	// in the given scope, or ErrNotFound. This is the exact-duplicate fast
	// path for ingestion.
	FindActiveByHash(ctx context.Context, scope types.Scope, factHash string) (*types.MemoryRecord, error)

	// ListByScope retrieves records in a scope with pagination and
	// filtering.
	ListByScope(ctx context.Context, scope types.Scope, opts ListOptions) (*PaginatedResult[types.MemoryRecord], error)

	// ListMissingEmbedding returns active records persisted without an
	// embedding, oldest first, for the backfill pass.
	ListMissingEmbedding(ctx context.Context, limit int) ([]*types.MemoryRecord, error)

	// ActiveEmbeddings streams (id, scope, embedding) for every active
	// embedding-bearing record. Used to rebuild the vector index on
	// startup.
	ActiveEmbeddings(ctx context.Context) ([]EmbeddingRef, error)

	// ListScopes returns every scope that has at least one record.
	ListScopes(ctx context.Context) ([]types.Scope, error)

	// AppendAudit appends a conflict audit entry. Entries are immutable.
	AppendAudit(ctx context.Context, entry *types.ConflictAuditEntry) error

	// AuditSince returns audit entries for an owner's scope created at or
	// after the given time, oldest first. A zero time returns everything.
	AuditSince(ctx context.Context, ownerAgent string, since time.Time) ([]*types.ConflictAuditEntry, error)

	// AppendRunSummary appends a maintenance run summary.
	AppendRunSummary(ctx context.Context, summary *types.MaintenanceRunSummary) error

	// ListRunSummaries returns the most recent run summaries, newest
	// first.
	ListRunSummaries(ctx context.Context, limit int) ([]*types.MaintenanceRunSummary, error)

	// Close releases any resources held by the store.
	Close() error
}

// EmbeddingRef pairs a record ID with its scope and stored embedding,
// without loading the full row.
type EmbeddingRef struct {
	ID        string
	Scope     types.Scope
	Embedding []float32
}
