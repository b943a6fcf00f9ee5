package engine

import (
	"testing"
	"time"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

func activeNeighbor(id string, similarity float64) ScoredNeighbor {
	return ScoredNeighbor{
		Record: &types.MemoryRecord{
			ID:         id,
			OwnerAgent: "planner",
			Content:    "neighbor content",
			Status:     types.StatusActive,
			CreatedAt:  time.Now().UTC(),
		},
		Similarity: similarity,
	}
}

func TestResolverClassification(t *testing.T) {
	resolver := NewConflictResolver(testConfig().Resolution)

	tests := []struct {
		name      string
		neighbors []ScoredNeighbor
		want      Outcome
	}{
		{"no neighbors", nil, OutcomeCreated},
		{"below conflict threshold", []ScoredNeighbor{activeNeighbor("a", 0.80)}, OutcomeCreated},
		{"just below conflict threshold", []ScoredNeighbor{activeNeighbor("a", 0.849)}, OutcomeCreated},
		{"at conflict threshold", []ScoredNeighbor{activeNeighbor("a", 0.85)}, OutcomeKeptBoth},
		{"within ambiguity margin", []ScoredNeighbor{activeNeighbor("a", 0.869)}, OutcomeKeptBoth},
		{"past ambiguity margin", []ScoredNeighbor{activeNeighbor("a", 0.88)}, OutcomeSuperseded},
		{"mid conflict band", []ScoredNeighbor{activeNeighbor("a", 0.90)}, OutcomeSuperseded},
		{"at dup threshold", []ScoredNeighbor{activeNeighbor("a", 0.95)}, OutcomeDuplicate},
		{"above dup threshold", []ScoredNeighbor{activeNeighbor("a", 0.99)}, OutcomeDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := resolver.Resolve(tt.neighbors)
			if decision.Outcome != tt.want {
				t.Errorf("got outcome %q, want %q", decision.Outcome, tt.want)
			}
			if tt.want != OutcomeCreated && decision.Neighbor == nil {
				t.Error("expected a neighbor in the decision")
			}
			if tt.want != OutcomeCreated && decision.Reason == "" {
				t.Error("expected a reason for the audit trail")
			}
		})
	}
}

func TestResolverPicksNearestNeighbor(t *testing.T) {
	resolver := NewConflictResolver(testConfig().Resolution)

	decision := resolver.Resolve([]ScoredNeighbor{
		activeNeighbor("far", 0.86),
		activeNeighbor("near", 0.96),
		activeNeighbor("mid", 0.90),
	})

	if decision.Outcome != OutcomeDuplicate {
		t.Fatalf("got outcome %q, want duplicate", decision.Outcome)
	}
	if decision.Neighbor.ID != "near" {
		t.Errorf("got neighbor %s, want near", decision.Neighbor.ID)
	}
}

func TestResolverIgnoresInactiveNeighbors(t *testing.T) {
	resolver := NewConflictResolver(testConfig().Resolution)

	contradicted := activeNeighbor("gone", 0.99)
	contradicted.Record.Status = types.StatusContradicted

	decision := resolver.Resolve([]ScoredNeighbor{contradicted})
	if decision.Outcome != OutcomeCreated {
		t.Errorf("got outcome %q, want created", decision.Outcome)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"mismatched lengths", []float32{1, 0}, []float32{1}, 0.0},
		{"empty", nil, nil, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}
