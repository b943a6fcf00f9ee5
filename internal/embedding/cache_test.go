package embedding

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	inner Provider
	calls atomic.Int64
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	return p.inner.Embed(ctx, text)
}

func (p *countingProvider) Dimensions() int { return p.inner.Dimensions() }

func TestCachedProviderAvoidsRepeatCalls(t *testing.T) {
	counting := &countingProvider{inner: NewMockProvider(8)}
	cached, err := NewCachedProvider(counting, 100)
	require.NoError(t, err)
	defer cached.Close()

	first, err := cached.Embed(context.Background(), "the user prefers oat milk")
	require.NoError(t, err)
	cached.Wait()

	second, err := cached.Embed(context.Background(), "the user prefers oat milk")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.calls.Load())
}

func TestCachedProviderNormalizesKeys(t *testing.T) {
	counting := &countingProvider{inner: NewMockProvider(8)}
	cached, err := NewCachedProvider(counting, 100)
	require.NoError(t, err)
	defer cached.Close()

	_, err = cached.Embed(context.Background(), "The User Prefers Oat Milk")
	require.NoError(t, err)
	cached.Wait()

	// Same content modulo case and whitespace hits the cache.
	_, err = cached.Embed(context.Background(), "the user   prefers oat milk")
	require.NoError(t, err)

	assert.Equal(t, int64(1), counting.calls.Load())
}
