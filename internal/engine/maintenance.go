package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/config"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/embedding"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/index"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// maintenancePageSize is the page size used when walking a scope.
const maintenancePageSize = 500

// MaintenanceEngine runs the periodic decay, archive, consolidate, and
// backfill cycle. Each scope is processed under the same lock ingestion
// uses, so live writes and maintenance never interleave within a scope.
// A failure in one scope is recorded in the run summary and never stops
// the remaining scopes.
type MaintenanceEngine struct {
	store    storage.RecordStore
	index    index.VectorIndex
	embedder embedding.Provider
	cfg      config.MaintenanceConfig
	resCfg   config.ResolutionConfig
	locks    *scopeLocks

	onCycleComplete func(summary *types.MaintenanceRunSummary)
}

// NewMaintenanceEngine creates a maintenance engine sharing locks with
// the ingestion pipeline.
func NewMaintenanceEngine(store storage.RecordStore, idx index.VectorIndex, embedder embedding.Provider, cfg config.MaintenanceConfig, resCfg config.ResolutionConfig, locks *scopeLocks) *MaintenanceEngine {
	return &MaintenanceEngine{
		store:    store,
		index:    idx,
		embedder: embedder,
		cfg:      cfg,
		resCfg:   resCfg,
		locks:    locks,
	}
}

// SetOnCycleComplete registers a callback fired after each cycle.
func (m *MaintenanceEngine) SetOnCycleComplete(fn func(summary *types.MaintenanceRunSummary)) {
	m.onCycleComplete = fn
}

// RunCycle executes one full maintenance cycle and appends a run
// summary. Every step is idempotent, so a crashed or repeated cycle is
// safe to re-run.
func (m *MaintenanceEngine) RunCycle(ctx context.Context) (*types.MaintenanceRunSummary, error) {
	started := time.Now().UTC()
	summary := &types.MaintenanceRunSummary{
		ID:        uuid.NewString(),
		RunType:   "daily",
		StartedAt: started,
	}
	details := types.RunDetails{}

	scopes, err := m.store.ListScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("maintenance: failed to list scopes: %w", err)
	}

	for _, scope := range scopes {
		m.runScope(ctx, scope, started, summary, &details)
		details.ScopesProcessed++
	}

	backfilled, backfillFailed := m.backfill(ctx)
	summary.BackfilledCount = backfilled
	details.BackfillFailed = backfillFailed

	details.Duration = time.Since(started).String()
	summary.Details = details
	summary.CreatedAt = time.Now().UTC()

	if err := m.store.AppendRunSummary(ctx, summary); err != nil {
		return summary, fmt.Errorf("maintenance: failed to append run summary: %w", err)
	}

	log.Printf("maintenance: cycle complete in %s: decayed=%d archived=%d consolidated=%d backfilled=%d errors=%d",
		details.Duration, summary.DecayedCount, summary.ArchivedCount, summary.ConsolidatedCount,
		summary.BackfilledCount, len(details.ScopeErrors))

	if m.onCycleComplete != nil {
		m.onCycleComplete(summary)
	}
	return summary, nil
}

// runScope runs the per-scope steps under the scope lock, recording step
// failures without aborting.
func (m *MaintenanceEngine) runScope(ctx context.Context, scope types.Scope, now time.Time, summary *types.MaintenanceRunSummary, details *types.RunDetails) {
	unlock := m.locks.lock(scope)
	defer unlock()

	if decayed, err := m.decayScope(ctx, scope, now); err != nil {
		details.ScopeErrors = append(details.ScopeErrors, types.ScopeError{Scope: scope.Key(), Step: "decay", Error: err.Error()})
	} else {
		summary.DecayedCount += decayed
	}

	if archived, err := m.archiveScope(ctx, scope, now); err != nil {
		details.ScopeErrors = append(details.ScopeErrors, types.ScopeError{Scope: scope.Key(), Step: "archive", Error: err.Error()})
	} else {
		summary.ArchivedCount += archived
	}

	if consolidated, err := m.consolidateScope(ctx, scope); err != nil {
		details.ScopeErrors = append(details.ScopeErrors, types.ScopeError{Scope: scope.Key(), Step: "consolidate", Error: err.Error()})
	} else {
		summary.ConsolidatedCount += consolidated
	}
}

// decayScope multiplies importance by decayRate^(whole days elapsed
// since the record was last accessed or last decayed), clamped to the
// floor. Records touched earlier the same day are skipped, which makes
// re-running a cycle a no-op.
func (m *MaintenanceEngine) decayScope(ctx context.Context, scope types.Scope, now time.Time) (int, error) {
	records, err := m.listActive(ctx, scope, storage.ListOptions{})
	if err != nil {
		return 0, err
	}

	decayed := 0
	for i := range records {
		record := &records[i]

		ref := record.CreatedAt
		if record.LastAccessedAt != nil && record.LastAccessedAt.After(ref) {
			ref = *record.LastAccessedAt
		}
		if record.DecayedAt != nil && record.DecayedAt.After(ref) {
			ref = *record.DecayedAt
		}

		days := math.Floor(now.Sub(ref).Hours() / 24)
		if days < 1 {
			continue
		}

		newImportance := record.Importance * math.Pow(m.cfg.DecayRate, days)
		if newImportance < m.cfg.ImportanceFloor {
			newImportance = m.cfg.ImportanceFloor
		}
		if newImportance >= record.Importance {
			continue
		}

		record.Importance = newImportance
		stamp := now
		record.DecayedAt = &stamp
		if err := m.store.Update(ctx, record); err != nil {
			return decayed, err
		}
		decayed++
	}
	return decayed, nil
}

// archiveScope moves low-importance, long-untouched active records to
// archived and drops them from the index.
func (m *MaintenanceEngine) archiveScope(ctx context.Context, scope types.Scope, now time.Time) (int, error) {
	records, err := m.listActive(ctx, scope, storage.ListOptions{
		MaxImportance:  m.cfg.ArchiveThreshold,
		AccessedBefore: now.Add(-m.cfg.ArchiveMinAge),
	})
	if err != nil {
		return 0, err
	}

	archived := 0
	for i := range records {
		record := &records[i]
		err := m.store.CasStatus(ctx, record.ID, types.StatusActive, types.StatusArchived, "")
		if errors.Is(err, storage.ErrCasConflict) || errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return archived, err
		}
		if err := m.index.Remove(ctx, record.ID, scope); err != nil {
			log.Printf("maintenance: failed to deindex archived record %s: %v", record.ID, err)
		}
		archived++
	}
	return archived, nil
}

// consolidateScope greedily clusters mutually near-duplicate active
// records and keeps one representative per cluster: highest access
// count, ties broken by newest creation time. The rest are contradicted
// with SupersededBy pointing at the representative.
func (m *MaintenanceEngine) consolidateScope(ctx context.Context, scope types.Scope) (int, error) {
	records, err := m.listActive(ctx, scope, storage.ListOptions{WithEmbedding: true})
	if err != nil {
		return 0, err
	}

	clustered := make([]bool, len(records))
	consolidated := 0

	for i := range records {
		if clustered[i] {
			continue
		}
		cluster := []int{i}
		clustered[i] = true
		for j := i + 1; j < len(records); j++ {
			if clustered[j] {
				continue
			}
			if cosineSimilarity(records[i].Embedding, records[j].Embedding) >= m.resCfg.DupThreshold {
				cluster = append(cluster, j)
				clustered[j] = true
			}
		}
		if len(cluster) < 2 {
			continue
		}

		rep := cluster[0]
		for _, idx := range cluster[1:] {
			if records[idx].AccessCount > records[rep].AccessCount ||
				(records[idx].AccessCount == records[rep].AccessCount && records[idx].CreatedAt.After(records[rep].CreatedAt)) {
				rep = idx
			}
		}

		for _, idx := range cluster {
			if idx == rep {
				continue
			}
			n, err := m.consolidateInto(ctx, scope, &records[rep], &records[idx])
			if err != nil {
				return consolidated, err
			}
			consolidated += n
		}
	}
	return consolidated, nil
}

// consolidateInto contradicts loser in favor of rep. A lost CAS race or
// a would-be supersession cycle skips the pair without failing the step.
func (m *MaintenanceEngine) consolidateInto(ctx context.Context, scope types.Scope, rep, loser *types.MemoryRecord) (int, error) {
	cycle, err := formsSupersessionCycle(ctx, m.store, rep.ID, loser.ID)
	if err != nil {
		return 0, err
	}
	if cycle {
		log.Printf("maintenance: refusing consolidation %s -> %s, would form a cycle", loser.ID, rep.ID)
		return 0, nil
	}

	err = m.store.CasStatus(ctx, loser.ID, types.StatusActive, types.StatusContradicted, rep.ID)
	if errors.Is(err, storage.ErrCasConflict) || errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := m.index.Remove(ctx, loser.ID, scope); err != nil {
		log.Printf("maintenance: failed to deindex consolidated record %s: %v", loser.ID, err)
	}

	entry := &types.ConflictAuditEntry{
		ID:              uuid.NewString(),
		OwnerAgent:      loser.OwnerAgent,
		WinningID:       rep.ID,
		LosingID:        loser.ID,
		SimilarityScore: cosineSimilarity(rep.Embedding, loser.Embedding),
		Resolution:      types.ResolutionConsolidated,
		Reason:          "merged near-duplicate cluster into representative",
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.store.AppendAudit(ctx, entry); err != nil {
		return 1, err
	}
	return 1, nil
}

// backfill re-attempts embeddings for records persisted while the
// provider was unavailable. Failures are counted and retried next cycle.
func (m *MaintenanceEngine) backfill(ctx context.Context) (backfilled, failed int) {
	records, err := m.store.ListMissingEmbedding(ctx, m.cfg.BackfillBatch)
	if err != nil {
		log.Printf("maintenance: failed to list records for backfill: %v", err)
		return 0, 0
	}

	for _, record := range records {
		vec, err := m.embedder.Embed(ctx, record.Content)
		if err != nil {
			failed++
			continue
		}

		scope := types.ScopeOf(record)
		unlock := m.locks.lock(scope)
		record.Embedding = vec
		if err := m.store.Update(ctx, record); err != nil {
			unlock()
			log.Printf("maintenance: failed to store backfilled embedding for %s: %v", record.ID, err)
			failed++
			continue
		}
		if err := m.index.Upsert(ctx, record.ID, scope, vec); err != nil {
			log.Printf("maintenance: failed to index backfilled record %s: %v", record.ID, err)
		}
		unlock()
		backfilled++
	}
	return backfilled, failed
}

// listActive pages through every active record in a scope.
func (m *MaintenanceEngine) listActive(ctx context.Context, scope types.Scope, opts storage.ListOptions) ([]types.MemoryRecord, error) {
	opts.Status = types.StatusActive
	opts.Limit = maintenancePageSize
	opts.SortBy = "created_at"
	opts.SortOrder = "asc"

	var records []types.MemoryRecord
	for page := 1; ; page++ {
		opts.Page = page
		result, err := m.store.ListByScope(ctx, scope, opts)
		if err != nil {
			return nil, err
		}
		records = append(records, result.Items...)
		if !result.HasMore {
			return records, nil
		}
	}
}
