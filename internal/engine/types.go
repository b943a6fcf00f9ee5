// Package engine coordinates ingestion, conflict resolution, retrieval,
// and maintenance for the agent memory store.
package engine

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// Sentinel errors surfaced by engine operations.
var (
	// ErrEmbeddingUnavailable indicates the embedding provider failed or
	// the circuit is open. Ingestion degrades to an embedding-less write;
	// retrieval fails with this error.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrResolutionFailed indicates conflict resolution lost the CAS race
	// repeatedly and gave up.
	ErrResolutionFailed = errors.New("conflict resolution failed after retries")

	// ErrNotStarted indicates an operation was invoked before Start.
	ErrNotStarted = errors.New("engine not started")
)

// Outcome describes what happened to an ingested statement.
type Outcome string

const (
	// OutcomeCreated means a new record was persisted with no conflict.
	OutcomeCreated Outcome = "created"

	// OutcomeDuplicate means an existing record absorbed the statement as
	// an access event; no new record was persisted.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeSuperseded means the new record replaced a conflicting one.
	OutcomeSuperseded Outcome = "superseded"

	// OutcomeKeptBoth means the statement was near the conflict boundary
	// and both records remain active.
	OutcomeKeptBoth Outcome = "kept_both"
)

// IngestRequest carries one statement into the pipeline.
type IngestRequest struct {
	// OwnerAgent is the authoring agent. Required.
	OwnerAgent string

	// Content is the factual statement. Required, length-capped.
	Content string

	// Visibility defaults to private.
	Visibility types.Visibility

	// SourceAgent defaults to OwnerAgent.
	SourceAgent string

	// Importance defaults to 0.5 when zero; clamped to [0, 1].
	Importance float64
}

// IngestResult reports the stored (or absorbed-into) record and how the
// pipeline resolved it.
type IngestResult struct {
	// Record is the surviving record for this statement: the new record,
	// or the existing one that absorbed it as a duplicate.
	Record *types.MemoryRecord

	// Outcome describes the resolution.
	Outcome Outcome

	// Audit is the audit entry written for this ingest, if any.
	Audit *types.ConflictAuditEntry

	// Degraded is true when the record was persisted without an embedding
	// because the provider was unavailable. Backfill repairs it later.
	Degraded bool
}

// SearchResult is one scored retrieval hit.
type SearchResult struct {
	Record *types.MemoryRecord

	// Score is the combined relevance score.
	Score float64

	// Components breaks the score into its weighted factors.
	Components ScoreComponents
}

// ScoreComponents breaks a relevance score into individual factors.
type ScoreComponents struct {
	Similarity float64
	Recency    float64
	Access     float64
}

// GenerateRecordID creates a unique record ID in the form
// mem:<owner>:<slug> with a random hex slug.
func GenerateRecordID(ownerAgent string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to generate record ID: %v", err))
	}
	return fmt.Sprintf("mem:%s:%s", ownerAgent, hex.EncodeToString(buf))
}
