package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockProvider generates deterministic pseudo-random unit vectors from
// the input text. Identical inputs always produce identical vectors, so
// duplicate detection and conflict resolution behave consistently in
// tests and local development without a real backend.
type MockProvider struct {
	dimensions int
}

// NewMockProvider creates a deterministic provider with the given
// embedding dimension.
func NewMockProvider(dimensions int) *MockProvider {
	return &MockProvider{dimensions: dimensions}
}

// Embed generates a deterministic unit vector seeded from the text.
func (p *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dimensions)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Map the high bits onto [-1, 1).
		vec[i] = float32(int64(seed>>11))/float32(1<<52) - 1
		norm += float64(vec[i]) * float64(vec[i])
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// Dimensions returns the configured embedding dimension.
func (p *MockProvider) Dimensions() int {
	return p.dimensions
}
