package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/config"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/embedding"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/index"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// Engine wires the ingestion pipeline, retrieval service, and
// maintenance engine over one store, index, and embedding provider.
type Engine struct {
	store    storage.RecordStore
	index    index.VectorIndex
	embedder embedding.Provider

	pipeline    *IngestionPipeline
	retrieval   *RetrievalService
	maintenance *MaintenanceEngine
	interval    time.Duration

	started    bool
	mu         sync.RWMutex
	tickCtx    context.Context
	tickCancel context.CancelFunc
	tickWG     sync.WaitGroup
}

// NewEngine creates an engine from its parts. All components share one
// scope-lock registry so writers within a scope are serialized across
// ingestion and maintenance.
func NewEngine(store storage.RecordStore, idx index.VectorIndex, embedder embedding.Provider, cfg *config.Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	locks := newScopeLocks()
	return &Engine{
		store:       store,
		index:       idx,
		embedder:    embedder,
		pipeline:    NewIngestionPipeline(store, idx, embedder, cfg.Resolution, locks),
		retrieval:   NewRetrievalService(store, idx, embedder, cfg.Retrieval),
		maintenance: NewMaintenanceEngine(store, idx, embedder, cfg.Maintenance, cfg.Resolution, locks),
		interval:    cfg.Maintenance.Interval,
	}, nil
}

// Start rebuilds the vector index from active embedding-bearing records
// and launches the periodic maintenance ticker.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	log.Println("engine: starting")

	refs, err := e.store.ActiveEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load embeddings for index rebuild: %w", err)
	}
	if err := e.index.Rebuild(ctx, refs); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	log.Printf("engine: index rebuilt with %d records", len(refs))

	e.tickCtx, e.tickCancel = context.WithCancel(context.Background())
	if e.interval > 0 {
		e.tickWG.Add(1)
		go e.maintenanceLoop()
	}

	e.started = true
	log.Println("engine: started")
	return nil
}

// Shutdown stops the maintenance ticker and closes the store.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return ErrNotStarted
	}

	log.Println("engine: shutting down")
	e.tickCancel()

	done := make(chan struct{})
	go func() {
		e.tickWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Println("engine: shutdown timed out waiting for maintenance")
	}

	e.started = false
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	log.Println("engine: shut down")
	return nil
}

func (e *Engine) maintenanceLoop() {
	defer e.tickWG.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.tickCtx.Done():
			return
		case <-ticker.C:
			if _, err := e.maintenance.RunCycle(e.tickCtx); err != nil {
				log.Printf("engine: maintenance cycle failed: %v", err)
			}
		}
	}
}

// Ingest runs one statement through the ingestion pipeline.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.pipeline.Ingest(ctx, req)
}

// Search returns the top-k scored records visible to the requesting agent.
func (e *Engine) Search(ctx context.Context, requestingAgent, query string, k int, includeShared bool) ([]SearchResult, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.retrieval.Search(ctx, requestingAgent, query, k, includeShared)
}

// Reactivate flips an archived record back to active.
func (e *Engine) Reactivate(ctx context.Context, requestingAgent, id string) (*types.MemoryRecord, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.retrieval.Reactivate(ctx, requestingAgent, id)
}

// GetConflictAudit returns an owner's conflict audit trail since a time.
func (e *Engine) GetConflictAudit(ctx context.Context, ownerAgent string, since time.Time) ([]*types.ConflictAuditEntry, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.retrieval.GetConflictAudit(ctx, ownerAgent, since)
}

// Get retrieves a record by ID.
func (e *Engine) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	return e.store.Get(ctx, id)
}

// RunMaintenance triggers one maintenance cycle immediately.
func (e *Engine) RunMaintenance(ctx context.Context) (*types.MaintenanceRunSummary, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.maintenance.RunCycle(ctx)
}

// SetOnRecordCreated registers a callback fired after a record is persisted.
func (e *Engine) SetOnRecordCreated(fn func(record *types.MemoryRecord)) {
	e.pipeline.SetOnRecordCreated(fn)
}

// SetOnConflictResolved registers a callback fired after an audit entry
// is written during ingestion.
func (e *Engine) SetOnConflictResolved(fn func(entry *types.ConflictAuditEntry)) {
	e.pipeline.SetOnConflictResolved(fn)
}

// SetOnCycleComplete registers a callback fired after each maintenance cycle.
func (e *Engine) SetOnCycleComplete(fn func(summary *types.MaintenanceRunSummary)) {
	e.maintenance.SetOnCycleComplete(fn)
}

func (e *Engine) requireStarted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return ErrNotStarted
	}
	return nil
}
