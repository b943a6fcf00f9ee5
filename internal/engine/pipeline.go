package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/config"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/embedding"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/index"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

const (
	// accessBoost is the importance bump applied when a record absorbs a
	// duplicate or is returned by retrieval.
	accessBoost = 0.01

	// maxResolveAttempts bounds re-resolution after losing a CAS race.
	maxResolveAttempts = 3

	// maxChainDepth bounds supersession chain walks.
	maxChainDepth = 64

	defaultImportance = 0.5
)

// IngestionPipeline validates, deduplicates, embeds, and
// conflict-resolves incoming statements. Writers within one scope are
// serialized by the shared scope-lock registry.
type IngestionPipeline struct {
	store    storage.RecordStore
	index    index.VectorIndex
	embedder embedding.Provider
	resolver *ConflictResolver
	locks    *scopeLocks
	cfg      config.ResolutionConfig

	onRecordCreated    func(record *types.MemoryRecord)
	onConflictResolved func(entry *types.ConflictAuditEntry)
}

// NewIngestionPipeline creates a pipeline sharing locks with the
// maintenance engine.
func NewIngestionPipeline(store storage.RecordStore, idx index.VectorIndex, embedder embedding.Provider, cfg config.ResolutionConfig, locks *scopeLocks) *IngestionPipeline {
	return &IngestionPipeline{
		store:    store,
		index:    idx,
		embedder: embedder,
		resolver: NewConflictResolver(cfg),
		locks:    locks,
		cfg:      cfg,
	}
}

// Ingest runs one statement through the pipeline.
//
// An active record with the same fact hash in the same scope absorbs the
// statement as an access event without calling the embedding provider.
// When the provider is unavailable the record persists without an
// embedding and is repaired by backfill later.
func (p *IngestionPipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	record, err := p.buildRecord(req)
	if err != nil {
		return nil, err
	}

	scope := types.ScopeOf(record)
	unlock := p.locks.lock(scope)
	defer unlock()

	// Exact-duplicate fast path.
	existing, err := p.store.FindActiveByHash(ctx, scope, record.FactHash)
	if err == nil {
		if err := p.store.TouchAccess(ctx, existing.ID, accessBoost); err != nil {
			return nil, fmt.Errorf("failed to record duplicate access: %w", err)
		}
		refreshed, err := p.store.Get(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Record: refreshed, Outcome: OutcomeDuplicate}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	vec, embedErr := p.embedder.Embed(ctx, record.Content)
	if embedErr != nil {
		// Degraded path: persist without an embedding so the statement is
		// not lost; backfill re-attempts the embedding.
		log.Printf("engine: embedding unavailable for %s, persisting without embedding: %v", record.ID, embedErr)
		if err := p.store.Insert(ctx, record); err != nil {
			return nil, err
		}
		p.notifyCreated(record)
		return &IngestResult{Record: record, Outcome: OutcomeCreated, Degraded: true}, nil
	}
	record.Embedding = vec

	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		neighbors, err := p.neighbors(ctx, scope, vec)
		if err != nil {
			return nil, err
		}

		decision := p.resolver.Resolve(neighbors)
		result, err := p.apply(ctx, scope, record, decision)
		if errors.Is(err, storage.ErrCasConflict) || errors.Is(err, storage.ErrNotFound) {
			// Lost the race on the neighbor's status; re-read and
			// re-resolve against the new state of the scope.
			continue
		}
		return result, err
	}

	return nil, fmt.Errorf("%w: scope %s", ErrResolutionFailed, scope.Key())
}

// SetOnRecordCreated registers a callback fired after a new record is
// persisted.
func (p *IngestionPipeline) SetOnRecordCreated(fn func(record *types.MemoryRecord)) {
	p.onRecordCreated = fn
}

// SetOnConflictResolved registers a callback fired after an audit entry
// is written.
func (p *IngestionPipeline) SetOnConflictResolved(fn func(entry *types.ConflictAuditEntry)) {
	p.onConflictResolved = fn
}

func (p *IngestionPipeline) buildRecord(req IngestRequest) (*types.MemoryRecord, error) {
	if req.OwnerAgent == "" {
		return nil, fmt.Errorf("%w: owner agent is required", storage.ErrInvalidInput)
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}
	if p.cfg.MaxContentLength > 0 && len(content) > p.cfg.MaxContentLength {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", storage.ErrInvalidInput, p.cfg.MaxContentLength)
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = types.VisibilityPrivate
	}
	if !types.IsValidVisibility(visibility) {
		return nil, fmt.Errorf("%w: invalid visibility %q", storage.ErrInvalidInput, visibility)
	}

	importance := req.Importance
	if importance == 0 {
		importance = defaultImportance
	}
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}

	sourceAgent := req.SourceAgent
	if sourceAgent == "" {
		sourceAgent = req.OwnerAgent
	}

	return &types.MemoryRecord{
		ID:          GenerateRecordID(req.OwnerAgent),
		OwnerAgent:  req.OwnerAgent,
		Content:     content,
		FactHash:    types.HashContent(content),
		Status:      types.StatusActive,
		Importance:  importance,
		Visibility:  visibility,
		SourceAgent: sourceAgent,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// neighbors queries the vector index and hydrates the hits, dropping
// records that are gone or no longer active (the index can lag the
// store briefly).
func (p *IngestionPipeline) neighbors(ctx context.Context, scope types.Scope, vec []float32) ([]ScoredNeighbor, error) {
	hits, err := p.index.Query(ctx, scope, vec, p.cfg.NeighborK)
	if err != nil {
		return nil, fmt.Errorf("neighbor query failed: %w", err)
	}

	var neighbors []ScoredNeighbor
	for _, hit := range hits {
		record, err := p.store.Get(ctx, hit.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.Status != types.StatusActive {
			continue
		}
		neighbors = append(neighbors, ScoredNeighbor{Record: record, Similarity: hit.Similarity})
	}
	return neighbors, nil
}

func (p *IngestionPipeline) apply(ctx context.Context, scope types.Scope, record *types.MemoryRecord, decision Decision) (*IngestResult, error) {
	switch decision.Outcome {
	case OutcomeCreated:
		if err := p.store.Insert(ctx, record); err != nil {
			return nil, err
		}
		if err := p.index.Upsert(ctx, record.ID, scope, record.Embedding); err != nil {
			return nil, fmt.Errorf("failed to index record: %w", err)
		}
		p.notifyCreated(record)
		return &IngestResult{Record: record, Outcome: OutcomeCreated}, nil

	case OutcomeDuplicate:
		if err := p.store.TouchAccess(ctx, decision.Neighbor.ID, accessBoost); err != nil {
			return nil, err
		}
		entry, err := p.appendAudit(ctx, record.OwnerAgent, decision.Neighbor.ID, record.ID, decision.Similarity, types.ResolutionDuplicate, decision.Reason)
		if err != nil {
			return nil, err
		}
		refreshed, err := p.store.Get(ctx, decision.Neighbor.ID)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Record: refreshed, Outcome: OutcomeDuplicate, Audit: entry}, nil

	case OutcomeKeptBoth:
		if err := p.store.Insert(ctx, record); err != nil {
			return nil, err
		}
		if err := p.index.Upsert(ctx, record.ID, scope, record.Embedding); err != nil {
			return nil, fmt.Errorf("failed to index record: %w", err)
		}
		entry, err := p.appendAudit(ctx, record.OwnerAgent, decision.Neighbor.ID, record.ID, decision.Similarity, types.ResolutionKeptBoth, decision.Reason)
		if err != nil {
			return nil, err
		}
		p.notifyCreated(record)
		return &IngestResult{Record: record, Outcome: OutcomeKeptBoth, Audit: entry}, nil

	case OutcomeSuperseded:
		cycle, err := formsSupersessionCycle(ctx, p.store, record.ID, decision.Neighbor.ID)
		if err != nil {
			return nil, err
		}
		if cycle {
			log.Printf("engine: refusing supersession %s -> %s, would form a cycle", decision.Neighbor.ID, record.ID)
			decision.Outcome = OutcomeKeptBoth
			decision.Reason = "supersession refused: chain would form a cycle"
			return p.apply(ctx, scope, record, decision)
		}

		// The CAS on the neighbor's status is the cross-process guard:
		// only the first writer moves it out of active.
		if err := p.store.CasStatus(ctx, decision.Neighbor.ID, types.StatusActive, types.StatusContradicted, record.ID); err != nil {
			return nil, err
		}
		if err := p.store.Insert(ctx, record); err != nil {
			// Restore the neighbor: a supersession chain must never point
			// at a record that was not persisted.
			if casErr := p.store.CasStatus(ctx, decision.Neighbor.ID, types.StatusContradicted, types.StatusActive, ""); casErr != nil {
				log.Printf("engine: failed to restore neighbor %s after insert failure: %v", decision.Neighbor.ID, casErr)
			}
			return nil, err
		}
		if err := p.index.Upsert(ctx, record.ID, scope, record.Embedding); err != nil {
			return nil, fmt.Errorf("failed to index record: %w", err)
		}
		if err := p.index.Remove(ctx, decision.Neighbor.ID, scope); err != nil {
			log.Printf("engine: failed to deindex superseded record %s: %v", decision.Neighbor.ID, err)
		}
		entry, err := p.appendAudit(ctx, record.OwnerAgent, record.ID, decision.Neighbor.ID, decision.Similarity, types.ResolutionSuperseded, decision.Reason)
		if err != nil {
			return nil, err
		}
		p.notifyCreated(record)
		return &IngestResult{Record: record, Outcome: OutcomeSuperseded, Audit: entry}, nil
	}

	return nil, fmt.Errorf("unknown resolution outcome %q", decision.Outcome)
}

func (p *IngestionPipeline) appendAudit(ctx context.Context, owner, winningID, losingID string, similarity float64, resolution types.Resolution, reason string) (*types.ConflictAuditEntry, error) {
	entry := &types.ConflictAuditEntry{
		ID:              uuid.NewString(),
		OwnerAgent:      owner,
		WinningID:       winningID,
		LosingID:        losingID,
		SimilarityScore: similarity,
		Resolution:      resolution,
		Reason:          reason,
		CreatedAt:       time.Now().UTC(),
	}
	if err := p.store.AppendAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}
	if p.onConflictResolved != nil {
		p.onConflictResolved(entry)
	}
	return entry, nil
}

func (p *IngestionPipeline) notifyCreated(record *types.MemoryRecord) {
	if p.onRecordCreated != nil {
		p.onRecordCreated(record)
	}
}

// formsSupersessionCycle walks the supersession chain starting at
// winnerID and reports whether pointing loserID at the winner would
// close a loop. Chains longer than maxChainDepth are treated as cyclic.
func formsSupersessionCycle(ctx context.Context, store storage.RecordStore, winnerID, loserID string) (bool, error) {
	seen := make(map[string]bool)
	id := winnerID
	for depth := 0; id != ""; depth++ {
		if depth >= maxChainDepth {
			return true, nil
		}
		if id == loserID || seen[id] {
			return true, nil
		}
		seen[id] = true

		record, err := store.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		id = record.SupersededBy
	}
	return false, nil
}
