// Package index provides scope-partitioned vector similarity search over
// record embeddings. The default implementation is an embedded chromem-go
// database rebuilt from the record store on startup; when running on
// PostgreSQL with pgvector, neighbor queries can instead run server-side.
package index

import (
	"context"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// Neighbor is one vector similarity result.
type Neighbor struct {
	// ID is the record ID.
	ID string

	// Similarity is the cosine similarity to the query vector, in [-1, 1].
	Similarity float64
}

// VectorIndex answers top-k neighbor queries within a single scope.
// Private scopes never leak across owners; all shared records form one
// scope.
type VectorIndex interface {
	// Upsert inserts or replaces the vector for a record.
	Upsert(ctx context.Context, id string, scope types.Scope, vector []float32) error

	// Remove drops a record from the index. Removing an absent record is
	// not an error.
	Remove(ctx context.Context, id string, scope types.Scope) error

	// Query returns up to k neighbors in the scope, most similar first.
	// An empty scope returns an empty slice.
	Query(ctx context.Context, scope types.Scope, vector []float32, k int) ([]Neighbor, error)

	// Rebuild replaces the index contents with the given refs. Called on
	// startup to restore the in-process index from persistent storage.
	Rebuild(ctx context.Context, refs []storage.EmbeddingRef) error
}
