package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"time"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/config"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/embedding"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/index"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// recencyHalfLifeHours controls how fast the recency component decays
// (one week half-life).
const recencyHalfLifeHours = 168.0

// RetrievalService answers semantic queries over a requesting agent's
// visible records and exposes the conflict audit trail.
type RetrievalService struct {
	store    storage.RecordStore
	index    index.VectorIndex
	embedder embedding.Provider
	cfg      config.RetrievalConfig
}

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(store storage.RecordStore, idx index.VectorIndex, embedder embedding.Provider, cfg config.RetrievalConfig) *RetrievalService {
	return &RetrievalService{
		store:    store,
		index:    idx,
		embedder: embedder,
		cfg:      cfg,
	}
}

// Search embeds the query and returns the top-k scored records visible
// to the requesting agent: its private scope, plus the shared scope when
// includeShared is set. Unlike ingestion there is no degraded mode; a
// failing provider fails the search.
//
// Every returned record gets access bookkeeping: an atomic count
// increment, timestamp, and a small importance boost.
func (s *RetrievalService) Search(ctx context.Context, requestingAgent, query string, k int, includeShared bool) ([]SearchResult, error) {
	if requestingAgent == "" {
		return nil, fmt.Errorf("%w: requesting agent is required", storage.ErrInvalidInput)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	if k <= 0 {
		k = s.cfg.DefaultLimit
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	scopes := []types.Scope{
		{OwnerAgent: requestingAgent, Visibility: types.VisibilityPrivate},
	}
	if includeShared {
		scopes = append(scopes, types.Scope{OwnerAgent: types.SharedScopeOwner, Visibility: types.VisibilityShared})
	}

	now := time.Now().UTC()
	var results []SearchResult
	for _, scope := range scopes {
		hits, err := s.index.Query(ctx, scope, vec, k)
		if err != nil {
			return nil, fmt.Errorf("index query failed: %w", err)
		}
		for _, hit := range hits {
			record, err := s.store.Get(ctx, hit.ID)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if record.Status != types.StatusActive {
				continue
			}
			score, components := s.score(record, hit.Similarity, now)
			results = append(results, SearchResult{
				Record:     record,
				Score:      score,
				Components: components,
			})
		}
	}

	slices.SortFunc(results, func(a, b SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(results) > k {
		results = results[:k]
	}

	for _, result := range results {
		if err := s.store.TouchAccess(ctx, result.Record.ID, accessBoost); err != nil {
			log.Printf("engine: failed to record access for %s: %v", result.Record.ID, err)
		}
	}

	return results, nil
}

// score combines similarity, recency, and access frequency with the
// configured weights. Recency decays exponentially from the last access
// (falling back to creation time).
func (s *RetrievalService) score(record *types.MemoryRecord, similarity float64, now time.Time) (float64, ScoreComponents) {
	ref := record.CreatedAt
	if record.LastAccessedAt != nil && !record.LastAccessedAt.IsZero() {
		ref = *record.LastAccessedAt
	}

	hours := now.Sub(ref).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := math.Exp(-math.Ln2 / recencyHalfLifeHours * hours)
	access := math.Log1p(float64(record.AccessCount))

	components := ScoreComponents{
		Similarity: similarity,
		Recency:    recency,
		Access:     access,
	}
	score := s.cfg.SimilarityWeight*similarity +
		s.cfg.RecencyWeight*recency +
		s.cfg.AccessWeight*access
	return score, components
}

// Reactivate flips an archived record back to active and re-indexes it.
// Contradicted records are terminal and cannot be reactivated. Only the
// owner (or any agent, for shared records) may reactivate.
func (s *RetrievalService) Reactivate(ctx context.Context, requestingAgent, id string) (*types.MemoryRecord, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.Visibility == types.VisibilityPrivate && record.OwnerAgent != requestingAgent {
		return nil, fmt.Errorf("%w: record %s is not visible to %s", storage.ErrNotFound, id, requestingAgent)
	}
	if record.Status == types.StatusContradicted {
		return nil, fmt.Errorf("%w: contradicted records cannot be reactivated", storage.ErrInvalidInput)
	}
	if record.Status == types.StatusActive {
		return record, nil
	}

	if err := s.store.CasStatus(ctx, id, types.StatusArchived, types.StatusActive, ""); err != nil {
		return nil, err
	}
	record.Status = types.StatusActive

	if record.HasEmbedding() {
		if err := s.index.Upsert(ctx, record.ID, types.ScopeOf(record), record.Embedding); err != nil {
			return nil, fmt.Errorf("failed to re-index record: %w", err)
		}
	}

	return record, nil
}

// GetConflictAudit returns the audit trail for an owner from the given
// time onward, oldest first.
func (s *RetrievalService) GetConflictAudit(ctx context.Context, ownerAgent string, since time.Time) ([]*types.ConflictAuditEntry, error) {
	return s.store.AuditSince(ctx, ownerAgent, since)
}
