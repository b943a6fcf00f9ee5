package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/config"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/embedding"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/index"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage/sqlite"
)

const testDims = 8

// stubEmbedder returns scripted vectors for known inputs and
// deterministic mock vectors otherwise. It counts calls and can be
// switched into a failing mode to simulate provider outages.
type stubEmbedder struct {
	vectors  map[string][]float32
	fallback *embedding.MockProvider
	calls    int
	fail     bool
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		vectors:  make(map[string][]float32),
		fallback: embedding.NewMockProvider(testDims),
	}
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("embedding backend down")
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return s.fallback.Embed(ctx, text)
}

func (s *stubEmbedder) Dimensions() int { return testDims }

// vecAt returns a unit vector at the given cosine similarity to the
// base vector returned by baseVec.
func vecAt(similarity float64) []float32 {
	v := make([]float32, testDims)
	v[0] = float32(similarity)
	v[1] = float32(math.Sqrt(1 - similarity*similarity))
	return v
}

func baseVec() []float32 {
	v := make([]float32, testDims)
	v[0] = 1
	return v
}

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{StorageEngine: "sqlite", DataPath: ":memory:"},
		Embedding: config.EmbeddingConfig{
			Provider:   "mock",
			Dimensions: testDims,
			Timeout:    5 * time.Second,
		},
		Resolution: config.ResolutionConfig{
			DupThreshold:      0.95,
			ConflictThreshold: 0.85,
			AmbiguityMargin:   0.02,
			NeighborK:         5,
			MaxContentLength:  65536,
		},
		Retrieval: config.RetrievalConfig{
			SimilarityWeight: 0.70,
			RecencyWeight:    0.20,
			AccessWeight:     0.10,
			DefaultLimit:     10,
		},
		Maintenance: config.MaintenanceConfig{
			Interval:         24 * time.Hour,
			DecayRate:        0.98,
			ImportanceFloor:  0.05,
			ArchiveThreshold: 0.2,
			ArchiveMinAge:    14 * 24 * time.Hour,
			BackfillBatch:    100,
		},
	}
}

// testHarness bundles the components most engine tests need.
type testHarness struct {
	store    *sqlite.RecordStore
	index    *index.ChromemIndex
	embedder *stubEmbedder
	locks    *scopeLocks
	cfg      *config.Config
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	store, err := sqlite.NewRecordStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return &testHarness{
		store:    store,
		index:    index.NewChromemIndex(),
		embedder: newStubEmbedder(),
		locks:    newScopeLocks(),
		cfg:      testConfig(),
	}
}

func (h *testHarness) newPipeline() *IngestionPipeline {
	return NewIngestionPipeline(h.store, h.index, h.embedder, h.cfg.Resolution, h.locks)
}

func (h *testHarness) newRetrieval() *RetrievalService {
	return NewRetrievalService(h.store, h.index, h.embedder, h.cfg.Retrieval)
}

func (h *testHarness) newMaintenance() *MaintenanceEngine {
	return NewMaintenanceEngine(h.store, h.index, h.embedder, h.cfg.Maintenance, h.cfg.Resolution, h.locks)
}
