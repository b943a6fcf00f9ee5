// cmd/agentmemd is the agent memory daemon. It wires a storage backend,
// a vector index, and an embedding provider into the memory engine,
// then serves the operator event feed until interrupted.
//
// Startup sequence:
//  1. Load configuration from environment variables, optionally
//     overridden by a YAML file (-config).
//  2. Open the storage backend (SQLite or Postgres) and apply the schema.
//  3. Pick the vector index: server-side pgvector when the extension is
//     available, in-process chromem otherwise.
//  4. Build the embedding provider chain: client (with circuit breaker),
//     rate limiter, cache.
//  5. Start the engine: index rebuild, then the maintenance ticker.
//  6. Serve the WebSocket event feed and wait for SIGINT / SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/config"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/embedding"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/engine"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/index"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/notify"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage/postgres"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage/sqlite"
)

func main() {
	log.SetPrefix("agentmemd: ")
	log.SetFlags(log.LstdFlags)

	configPath := flag.String("config", "", "optional YAML config file; overrides environment variables")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, idx, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}

	provider, err := buildProvider(cfg.Embedding)
	if err != nil {
		log.Fatalf("failed to build embedding provider: %v", err)
	}

	eng, err := engine.NewEngine(store, idx, provider, cfg)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	hub := notify.NewHub([]string{addr, fmt.Sprintf("localhost:%d", cfg.Server.Port)})
	notify.Bind(eng, hub)
	go hub.Run()

	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("event feed listening on ws://%s/events", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("event feed server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("event feed shutdown error: %v", err)
	}
	hub.Stop()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Printf("engine shutdown error: %v", err)
	}
	log.Println("goodbye")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigFromFile(path)
	}
	return config.LoadConfig()
}

// openBackend opens the configured store and picks the matching index.
// Postgres prefers server-side pgvector search and falls back to the
// in-process index when the extension is missing.
func openBackend(cfg *config.Config) (storage.RecordStore, index.VectorIndex, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		store, err := postgres.NewRecordStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if store.PgvectorAvailable() {
			log.Println("storage: postgres with pgvector neighbor search")
			return store, index.NewPgvectorIndex(store), nil
		}
		log.Println("storage: postgres without pgvector, using in-process index")
		return store, index.NewChromemIndex(), nil

	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, "agentmem.db")
		store, err := sqlite.NewRecordStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("storage: sqlite at %s", dbPath)
		return store, index.NewChromemIndex(), nil
	}
}

// buildProvider assembles the embedding chain: backend client, rate
// limiter, cache. The circuit breaker lives inside the HTTP clients.
func buildProvider(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	var provider embedding.Provider
	switch cfg.Provider {
	case "ollama":
		provider = embedding.NewOllamaClient(embedding.OllamaConfig{
			BaseURL:    cfg.OllamaURL,
			Model:      cfg.OllamaModel,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
			Breaker:    embedding.DefaultCircuitBreakerConfig(),
		})
	case "openai":
		provider = embedding.NewOpenAIClient(embedding.OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
			Breaker:    embedding.DefaultCircuitBreakerConfig(),
		})
	case "mock":
		provider = embedding.NewMockProvider(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.RequestsPerSecond > 0 {
		provider = embedding.NewRateLimitedProvider(provider, cfg.RequestsPerSecond, cfg.RequestBurst)
	}
	if cfg.CacheSize > 0 {
		cached, err := embedding.NewCachedProvider(provider, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		provider = cached
	}
	return provider, nil
}
