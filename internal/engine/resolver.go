package engine

import (
	"fmt"
	"math"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/config"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// ScoredNeighbor pairs an existing record with its similarity to an
// incoming statement.
type ScoredNeighbor struct {
	Record     *types.MemoryRecord
	Similarity float64
}

// Decision is the resolver's verdict for an incoming statement.
type Decision struct {
	// Outcome selects the action the pipeline applies.
	Outcome Outcome

	// Neighbor is the existing record involved in the decision. Nil for
	// OutcomeCreated.
	Neighbor *types.MemoryRecord

	// Similarity is the candidate-to-neighbor similarity behind the
	// decision.
	Similarity float64

	// Reason is a short human-readable explanation stored in the audit
	// trail.
	Reason string
}

// ConflictResolver classifies an incoming statement against its nearest
// neighbors using configured similarity thresholds.
//
// At or above DupThreshold the statement is a duplicate of the neighbor.
// Between ConflictThreshold and DupThreshold the statements conflict and
// the newer one wins, except within AmbiguityMargin of ConflictThreshold
// where the call is too close and both records are kept. Below
// ConflictThreshold the statement is unrelated and inserted plainly.
type ConflictResolver struct {
	cfg config.ResolutionConfig
}

// NewConflictResolver creates a resolver with the given thresholds.
func NewConflictResolver(cfg config.ResolutionConfig) *ConflictResolver {
	return &ConflictResolver{cfg: cfg}
}

// Resolve picks the nearest neighbor and classifies the statement.
func (r *ConflictResolver) Resolve(neighbors []ScoredNeighbor) Decision {
	var top *ScoredNeighbor
	for i := range neighbors {
		if neighbors[i].Record == nil || neighbors[i].Record.Status != types.StatusActive {
			continue
		}
		if top == nil || neighbors[i].Similarity > top.Similarity {
			top = &neighbors[i]
		}
	}

	if top == nil || top.Similarity < r.cfg.ConflictThreshold {
		return Decision{Outcome: OutcomeCreated}
	}

	if top.Similarity >= r.cfg.DupThreshold {
		return Decision{
			Outcome:    OutcomeDuplicate,
			Neighbor:   top.Record,
			Similarity: top.Similarity,
			Reason:     fmt.Sprintf("similarity %.3f at or above duplicate threshold %.3f", top.Similarity, r.cfg.DupThreshold),
		}
	}

	if top.Similarity < r.cfg.ConflictThreshold+r.cfg.AmbiguityMargin {
		return Decision{
			Outcome:    OutcomeKeptBoth,
			Neighbor:   top.Record,
			Similarity: top.Similarity,
			Reason:     fmt.Sprintf("similarity %.3f within ambiguity margin of conflict threshold %.3f", top.Similarity, r.cfg.ConflictThreshold),
		}
	}

	return Decision{
		Outcome:    OutcomeSuperseded,
		Neighbor:   top.Record,
		Similarity: top.Similarity,
		Reason:     fmt.Sprintf("similarity %.3f in conflict band, newer statement wins", top.Similarity),
	}
}

// cosineSimilarity computes the cosine similarity of two vectors.
// Mismatched or empty vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
