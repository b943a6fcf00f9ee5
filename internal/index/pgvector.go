package index

import (
	"context"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage/postgres"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// PgvectorIndex implements VectorIndex on top of a PostgreSQL record
// store with the pgvector extension. The embedding_vec column written by
// the store IS the index, so Upsert, Remove, and Rebuild are no-ops and
// only Query does work (server-side, against the ivfflat cosine index).
type PgvectorIndex struct {
	store *postgres.RecordStore
}

// NewPgvectorIndex wraps a PostgreSQL store for server-side neighbor
// search. Callers should verify store.PgvectorAvailable() first and fall
// back to the chromem index otherwise.
func NewPgvectorIndex(store *postgres.RecordStore) *PgvectorIndex {
	return &PgvectorIndex{store: store}
}

// Upsert is a no-op: the store already wrote embedding_vec.
func (x *PgvectorIndex) Upsert(ctx context.Context, id string, scope types.Scope, vector []float32) error {
	return nil
}

// Remove is a no-op: status transitions already exclude the row from
// neighbor queries, which filter on status = 'active'.
func (x *PgvectorIndex) Remove(ctx context.Context, id string, scope types.Scope) error {
	return nil
}

// Query runs the neighbor search server-side.
func (x *PgvectorIndex) Query(ctx context.Context, scope types.Scope, vector []float32, k int) ([]Neighbor, error) {
	rows, err := x.store.NearestNeighbors(ctx, scope, vector, k)
	if err != nil {
		return nil, err
	}

	neighbors := make([]Neighbor, 0, len(rows))
	for _, row := range rows {
		neighbors = append(neighbors, Neighbor{ID: row.ID, Similarity: row.Similarity})
	}
	return neighbors, nil
}

// Rebuild is a no-op: the index lives in the database.
func (x *PgvectorIndex) Rebuild(ctx context.Context, refs []storage.EmbeddingRef) error {
	return nil
}
