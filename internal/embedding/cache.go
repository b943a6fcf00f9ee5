package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// CachedProvider memoizes embeddings keyed by the content hash of the
// input text. Providers are idempotent per input, so re-ingesting the
// same fact or retrying a backfill never costs a second backend call.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCachedProvider wraps inner with an in-memory cache holding up to
// maxEntries embeddings.
func NewCachedProvider(inner Provider, maxEntries int64) (*CachedProvider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

// Embed returns a cached embedding when one exists for the normalized
// content, otherwise delegates to the wrapped provider and caches the
// result.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := types.HashContent(text)
	if cached, found := p.cache.Get(key); found {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, vec, 1)
	return vec, nil
}

// Dimensions returns the wrapped provider's embedding dimension.
func (p *CachedProvider) Dimensions() int {
	return p.inner.Dimensions()
}

// Wait blocks until pending cache writes are applied. Used in tests.
func (p *CachedProvider) Wait() {
	p.cache.Wait()
}

// Close releases cache resources.
func (p *CachedProvider) Close() {
	p.cache.Close()
}
