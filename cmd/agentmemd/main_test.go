package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/config"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/index"
)

func TestBuildProviderMock(t *testing.T) {
	provider, err := buildProvider(config.EmbeddingConfig{
		Provider:   "mock",
		Dimensions: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, 64, provider.Dimensions())

	vec, err := provider.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}

func TestBuildProviderUnknown(t *testing.T) {
	_, err := buildProvider(config.EmbeddingConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestBuildProviderAppliesChain(t *testing.T) {
	// Rate limiting and caching wrap the backend without changing the
	// reported dimensionality.
	provider, err := buildProvider(config.EmbeddingConfig{
		Provider:          "mock",
		Dimensions:        32,
		RequestsPerSecond: 100,
		RequestBurst:      5,
		CacheSize:         128,
	})
	require.NoError(t, err)
	assert.Equal(t, 32, provider.Dimensions())

	first, err := provider.Embed(context.Background(), "cached text")
	require.NoError(t, err)
	second, err := provider.Embed(context.Background(), "cached text")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOpenBackendSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			StorageEngine: "sqlite",
			DataPath:      filepath.Join(dir, "data"),
		},
	}

	store, idx, err := openBackend(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.IsType(t, &index.ChromemIndex{}, idx)

	scopes, err := store.ListScopes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, scopes)
}
