package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// RecordStore implements storage.RecordStore using SQLite.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore creates a new SQLite record store with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a crashed
// process), it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewRecordStore(dsn string) (*RecordStore, error) {
	store, err := openRecordStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openRecordStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

// openRecordStore opens a SQLite database, configures WAL mode, and creates the schema.
func openRecordStore(dsn string) (*RecordStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Connections live for the lifetime of the store.

	// Enable WAL mode for better read concurrency (readers don't block writers).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so that callers wait instead of getting an immediate
	// SQLITE_BUSY error when the connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &RecordStore{db: db}, nil
}

// recordColumns is the shared SELECT column list for record scans.
const recordColumns = `
	id, owner_agent, content, fact_hash,
	embedding, dimension,
	status, superseded_by,
	importance, access_count, last_accessed_at, decayed_at,
	visibility, source_agent,
	created_at
`

// Insert creates a new record. IDs are immutable; inserting an existing ID
// is an error.
func (s *RecordStore) Insert(ctx context.Context, record *types.MemoryRecord) error {
	if record == nil {
		return storage.ErrInvalidInput
	}

	if record.ID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	if record.OwnerAgent == "" {
		return fmt.Errorf("%w: owner agent is required", storage.ErrInvalidInput)
	}

	if record.Content == "" {
		return fmt.Errorf("%w: record content is required", storage.ErrInvalidInput)
	}

	if record.FactHash == "" {
		record.FactHash = types.HashContent(record.Content)
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if record.Status == "" {
		record.Status = types.StatusActive
	}

	if record.Visibility == "" {
		record.Visibility = types.VisibilityPrivate
	}

	var embeddingBytes []byte
	var dimension sql.NullInt64
	if record.HasEmbedding() {
		embeddingBytes = serializeEmbedding(record.Embedding)
		dimension = sql.NullInt64{Int64: int64(len(record.Embedding)), Valid: true}
	}

	query := `
		INSERT INTO records (
			id, owner_agent, content, fact_hash,
			embedding, dimension,
			status, superseded_by,
			importance, access_count, last_accessed_at, decayed_at,
			visibility, source_agent,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.OwnerAgent,
		record.Content,
		record.FactHash,
		embeddingBytes,
		dimension,
		record.Status,
		nullableString(record.SupersededBy),
		record.Importance,
		record.AccessCount,
		nullableTime(record.LastAccessedAt),
		nullableTime(record.DecayedAt),
		record.Visibility,
		nullableString(record.SourceAgent),
		record.CreatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: record %s already exists", storage.ErrInvalidInput, record.ID)
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// Get retrieves a record by ID.
func (s *RecordStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE id = ?`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

// Update rewrites a record's mutable fields. Identity fields (owner,
// content, hash, creation time) are not touched.
func (s *RecordStore) Update(ctx context.Context, record *types.MemoryRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	var embeddingBytes []byte
	var dimension sql.NullInt64
	if record.HasEmbedding() {
		embeddingBytes = serializeEmbedding(record.Embedding)
		dimension = sql.NullInt64{Int64: int64(len(record.Embedding)), Valid: true}
	}

	query := `
		UPDATE records
		SET embedding = ?,
		    dimension = ?,
		    status = ?,
		    superseded_by = ?,
		    importance = ?,
		    access_count = ?,
		    last_accessed_at = ?,
		    decayed_at = ?,
		    visibility = ?,
		    source_agent = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		embeddingBytes,
		dimension,
		record.Status,
		nullableString(record.SupersededBy),
		record.Importance,
		record.AccessCount,
		nullableTime(record.LastAccessedAt),
		nullableTime(record.DecayedAt),
		record.Visibility,
		nullableString(record.SourceAgent),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// CasStatus atomically transitions status from one value to another. The
// WHERE clause on the current status makes the transition a compare-and-swap:
// a concurrent writer that got there first leaves zero rows affected.
func (s *RecordStore) CasStatus(ctx context.Context, id string, from, to types.RecordStatus, supersededBy string) error {
	if id == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	query := `
		UPDATE records
		SET status = ?, superseded_by = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, query, to, nullableString(supersededBy), id, from)
	if err != nil {
		return fmt.Errorf("sqlite: failed to transition status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish "gone" from "changed under us".
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE id = ?`, id).Scan(&count); err != nil {
			return fmt.Errorf("sqlite: failed to check existence: %w", err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrCasConflict
	}

	return nil
}

// TouchAccess atomically increments access_count, stamps last_accessed_at,
// and applies a clamped importance boost in a single UPDATE.
func (s *RecordStore) TouchAccess(ctx context.Context, id string, boost float64) error {
	if id == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	query := `
		UPDATE records
		SET access_count = access_count + 1,
		    last_accessed_at = ?,
		    importance = MIN(importance + ?, 1.0)
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), boost, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to record access: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// FindActiveByHash returns the active record with the given fact hash in
// the given scope, or ErrNotFound.
func (s *RecordStore) FindActiveByHash(ctx context.Context, scope types.Scope, factHash string) (*types.MemoryRecord, error) {
	if factHash == "" {
		return nil, fmt.Errorf("%w: fact hash is required", storage.ErrInvalidInput)
	}

	clause, args := scopeClause(scope)
	args = append(args, factHash)

	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE ` + clause + ` AND status = 'active' AND fact_hash = ?
		ORDER BY created_at DESC
		LIMIT 1`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record by hash: %w", err)
	}

	return record, nil
}

// ListByScope retrieves records in a scope with pagination and filtering.
func (s *RecordStore) ListByScope(ctx context.Context, scope types.Scope, opts storage.ListOptions) (*storage.PaginatedResult[types.MemoryRecord], error) {
	opts.Normalize()

	clause, args := scopeClause(scope)
	where := []string{clause}

	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}

	if opts.MaxImportance > 0 {
		where = append(where, "importance < ?")
		args = append(args, opts.MaxImportance)
	}

	if !opts.AccessedBefore.IsZero() {
		where = append(where, "COALESCE(last_accessed_at, created_at) < ?")
		args = append(args, opts.AccessedBefore)
	}

	if opts.WithEmbedding {
		where = append(where, "embedding IS NOT NULL")
	}

	whereSQL := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM records WHERE ` + whereSQL
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	// SortBy/SortOrder are whitelist-validated by Normalize.
	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE ` + whereSQL + `
		ORDER BY ` + opts.SortBy + ` ` + opts.SortOrder + `
		LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	items, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.MemoryRecord]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// ListMissingEmbedding returns active records persisted without an
// embedding, oldest first.
func (s *RecordStore) ListMissingEmbedding(ctx context.Context, limit int) ([]*types.MemoryRecord, error) {
	if limit < 1 {
		limit = 100
	}

	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE embedding IS NULL AND status = 'active'
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records missing embeddings: %w", err)
	}
	defer rows.Close()

	items, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	result := make([]*types.MemoryRecord, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

// ActiveEmbeddings returns (id, scope, embedding) for every active
// embedding-bearing record, newest first.
func (s *RecordStore) ActiveEmbeddings(ctx context.Context) ([]storage.EmbeddingRef, error) {
	query := `
		SELECT id, owner_agent, visibility, embedding, dimension
		FROM records
		WHERE embedding IS NOT NULL AND status = 'active'
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load active embeddings: %w", err)
	}
	defer rows.Close()

	var refs []storage.EmbeddingRef
	for rows.Next() {
		var (
			id, owner  string
			visibility types.Visibility
			blob       []byte
			dimension  int
		)
		if err := rows.Scan(&id, &owner, &visibility, &blob, &dimension); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}

		embedding, err := deserializeEmbedding(blob, dimension)
		if err != nil {
			// A corrupt blob should not break the whole rebuild.
			log.Printf("sqlite: skipping corrupt embedding for %s: %v", id, err)
			continue
		}

		refs = append(refs, storage.EmbeddingRef{
			ID:        id,
			Scope:     types.ScopeOf(&types.MemoryRecord{OwnerAgent: owner, Visibility: visibility}),
			Embedding: embedding,
		})
	}

	return refs, rows.Err()
}

// ListScopes returns every scope that has at least one record.
func (s *RecordStore) ListScopes(ctx context.Context) ([]types.Scope, error) {
	query := `SELECT DISTINCT owner_agent, visibility FROM records`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	seen := make(map[types.Scope]bool)
	var scopes []types.Scope
	for rows.Next() {
		var owner string
		var visibility types.Visibility
		if err := rows.Scan(&owner, &visibility); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scope := types.ScopeOf(&types.MemoryRecord{OwnerAgent: owner, Visibility: visibility})
		if !seen[scope] {
			seen[scope] = true
			scopes = append(scopes, scope)
		}
	}

	return scopes, rows.Err()
}

// AppendAudit appends a conflict audit entry.
func (s *RecordStore) AppendAudit(ctx context.Context, entry *types.ConflictAuditEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: audit entry ID is required", storage.ErrInvalidInput)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO conflict_audit (id, owner_agent, winning_id, losing_id, similarity, resolution, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.OwnerAgent,
		entry.WinningID,
		entry.LosingID,
		entry.SimilarityScore,
		entry.Resolution,
		nullableString(entry.Reason),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// AuditSince returns audit entries for an owner created at or after the
// given time, oldest first.
func (s *RecordStore) AuditSince(ctx context.Context, ownerAgent string, since time.Time) ([]*types.ConflictAuditEntry, error) {
	if ownerAgent == "" {
		return nil, fmt.Errorf("%w: owner agent is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, owner_agent, winning_id, losing_id, similarity, resolution, reason, created_at
		FROM conflict_audit
		WHERE owner_agent = ? AND created_at >= ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerAgent, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.ConflictAuditEntry
	for rows.Next() {
		var entry types.ConflictAuditEntry
		var reason sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.OwnerAgent,
			&entry.WinningID,
			&entry.LosingID,
			&entry.SimilarityScore,
			&entry.Resolution,
			&reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if reason.Valid {
			entry.Reason = reason.String
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// AppendRunSummary appends a maintenance run summary.
func (s *RecordStore) AppendRunSummary(ctx context.Context, summary *types.MaintenanceRunSummary) error {
	if summary == nil || summary.ID == "" {
		return fmt.Errorf("%w: run summary ID is required", storage.ErrInvalidInput)
	}

	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	detailsJSON, err := json.Marshal(summary.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal run details: %w", err)
	}

	query := `
		INSERT INTO maintenance_runs (id, run_type, archived_count, consolidated_count, decayed_count, backfilled_count, details, started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		summary.ID,
		summary.RunType,
		summary.ArchivedCount,
		summary.ConsolidatedCount,
		summary.DecayedCount,
		summary.BackfilledCount,
		string(detailsJSON),
		summary.StartedAt,
		summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append run summary: %w", err)
	}

	return nil
}

// ListRunSummaries returns the most recent run summaries, newest first.
func (s *RecordStore) ListRunSummaries(ctx context.Context, limit int) ([]*types.MaintenanceRunSummary, error) {
	if limit < 1 {
		limit = 10
	}

	query := `
		SELECT id, run_type, archived_count, consolidated_count, decayed_count, backfilled_count, details, started_at, created_at
		FROM maintenance_runs
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*types.MaintenanceRunSummary
	for rows.Next() {
		var summary types.MaintenanceRunSummary
		var detailsJSON sql.NullString
		if err := rows.Scan(
			&summary.ID,
			&summary.RunType,
			&summary.ArchivedCount,
			&summary.ConsolidatedCount,
			&summary.DecayedCount,
			&summary.BackfilledCount,
			&detailsJSON,
			&summary.StartedAt,
			&summary.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &summary.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal run details: %w", err)
			}
		}
		summaries = append(summaries, &summary)
	}

	return summaries, rows.Err()
}

// Close releases the database connection.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for tests.
func (s *RecordStore) DB() *sql.DB {
	return s.db
}

// scopeClause returns the WHERE fragment selecting records in a scope.
// Shared records form one scope regardless of owner.
func scopeClause(scope types.Scope) (string, []interface{}) {
	if scope.Visibility == types.VisibilityShared {
		return "visibility = ?", []interface{}{types.VisibilityShared}
	}
	return "visibility = ? AND owner_agent = ?", []interface{}{types.VisibilityPrivate, scope.OwnerAgent}
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord reads one record row.
func scanRecord(row rowScanner) (*types.MemoryRecord, error) {
	var record types.MemoryRecord
	var embeddingBlob []byte
	var dimension sql.NullInt64
	var supersededBy, sourceAgent sql.NullString
	var lastAccessedAt, decayedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.OwnerAgent,
		&record.Content,
		&record.FactHash,
		&embeddingBlob,
		&dimension,
		&record.Status,
		&supersededBy,
		&record.Importance,
		&record.AccessCount,
		&lastAccessedAt,
		&decayedAt,
		&record.Visibility,
		&sourceAgent,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(embeddingBlob) > 0 && dimension.Valid {
		embedding, err := deserializeEmbedding(embeddingBlob, int(dimension.Int64))
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize embedding: %w", err)
		}
		record.Embedding = embedding
	}

	if supersededBy.Valid {
		record.SupersededBy = supersededBy.String
	}
	if sourceAgent.Valid {
		record.SourceAgent = sourceAgent.String
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		record.LastAccessedAt = &t
	}
	if decayedAt.Valid {
		t := decayedAt.Time
		record.DecayedAt = &t
	}

	return &record, nil
}

// scanRecords reads all record rows from a result set.
func scanRecords(rows *sql.Rows) ([]types.MemoryRecord, error) {
	var records []types.MemoryRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// nullableTime converts a time pointer to sql.NullTime.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths ("/path/to/db.sqlite") and file: URIs ("file:/path/to/db.sqlite?mode=rwc").
// Returns empty string for in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database path
// AND no other process currently holds them open (via lsof).
// Returns false if lsof is unavailable (conservative: no deletion).
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		// lsof not available (e.g., Alpine Docker) — conservative fallback.
		return false
	}

	// Check the main db file, -shm, and -wal in a single lsof invocation.
	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		// lsof returns exit code 1 when no files are open — that means stale.
		return true
	}

	return strings.TrimSpace(string(output)) == ""
}

// removeStaleWAL removes -shm and -wal files for the given database path.
func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

// fileExists returns true if the path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
