package index

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// ChromemIndex implements VectorIndex using chromem-go, a pure Go
// embedded vector database. One collection per scope keeps private
// scopes physically separated.
type ChromemIndex struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// NewChromemIndex creates an empty in-memory index.
func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// getOrCreateCollection returns the collection for a scope.
func (x *ChromemIndex) getOrCreateCollection(scope types.Scope) (*chromem.Collection, error) {
	name := collectionName(scope)

	x.mu.RLock()
	col, exists := x.collections[name]
	x.mu.RUnlock()

	if exists {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := x.collections[name]; exists {
		return col, nil
	}

	// No custom embedding func (we provide vectors) and default cosine distance.
	col, err := x.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	x.collections[name] = col
	return col, nil
}

// Upsert inserts or replaces the vector for a record. Vectors are
// L2-normalized so cosine similarity is a plain dot product.
func (x *ChromemIndex) Upsert(ctx context.Context, id string, scope types.Scope, vector []float32) error {
	if id == "" {
		return fmt.Errorf("record ID is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("vector is required")
	}

	col, err := x.getOrCreateCollection(scope)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Content:   id, // chromem requires content; the record store holds the real text
		Embedding: normalize(vector),
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	return nil
}

// Remove drops a record from the index.
func (x *ChromemIndex) Remove(ctx context.Context, id string, scope types.Scope) error {
	x.mu.RLock()
	col, exists := x.collections[collectionName(scope)]
	x.mu.RUnlock()

	if !exists {
		return nil
	}

	if err := col.Delete(ctx, nil, nil, id); err != nil {
		// Deleting an absent document is not an error for callers.
		if strings.Contains(err.Error(), "no document IDs") {
			return nil
		}
		return fmt.Errorf("delete document: %w", err)
	}

	return nil
}

// Query returns up to k neighbors in the scope, most similar first.
func (x *ChromemIndex) Query(ctx context.Context, scope types.Scope, vector []float32, k int) ([]Neighbor, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	if k < 1 {
		k = 5
	}

	x.mu.RLock()
	col, exists := x.collections[collectionName(scope)]
	x.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	// chromem requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, normalize(vector), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(results))
	for _, result := range results {
		neighbors = append(neighbors, Neighbor{
			ID:         result.ID,
			Similarity: float64(result.Similarity),
		})
	}

	return neighbors, nil
}

// Rebuild replaces the index contents with the given refs.
func (x *ChromemIndex) Rebuild(ctx context.Context, refs []storage.EmbeddingRef) error {
	x.mu.Lock()
	x.db = chromem.NewDB()
	x.collections = make(map[string]*chromem.Collection)
	x.mu.Unlock()

	for _, ref := range refs {
		if err := x.Upsert(ctx, ref.ID, ref.Scope, ref.Embedding); err != nil {
			return fmt.Errorf("rebuild %s: %w", ref.ID, err)
		}
	}

	return nil
}

// collectionName maps a scope to a chromem collection name.
// chromem restricts names to [a-zA-Z0-9_-], so the owner is sanitized.
func collectionName(scope types.Scope) string {
	owner := scope.OwnerAgent
	if scope.Visibility == types.VisibilityShared {
		return "shared"
	}
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, owner)
	return "private_" + sanitized
}

// normalize returns the unit-length copy of a vector. Zero vectors are
// returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
