// Package config provides configuration management for the agent memory
// daemon. It loads settings from environment variables with the AGENTMEM_
// prefix and provides sensible defaults for all configuration options.
//
// An optional YAML file can overlay the environment: LoadConfigFromFile
// reads the file on top of the environment-derived base, with file values
// taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the daemon.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Resolution  ResolutionConfig  `yaml:"resolution"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig contains the event feed listener configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Event feed port (default: 6464)
	Host string `yaml:"host"` // Event feed host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"storage_engine"` // Storage engine: sqlite, postgres (default: sqlite)
	DataPath      string `yaml:"data_path"`      // Path to data directory for sqlite (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn"`   // Postgres connection string
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`            // Provider: ollama, openai, mock (default: ollama)
	OllamaURL         string        `yaml:"ollama_url"`          // Ollama API URL (default: http://localhost:11434)
	OllamaModel       string        `yaml:"ollama_model"`        // Ollama embedding model (default: nomic-embed-text)
	OpenAIBaseURL     string        `yaml:"openai_base_url"`     // OpenAI-compatible base URL
	OpenAIAPIKey      string        `yaml:"openai_api_key"`      // OpenAI API key
	OpenAIModel       string        `yaml:"openai_model"`        // OpenAI embedding model (default: text-embedding-3-small)
	Dimensions        int           `yaml:"dimensions"`          // Embedding dimension (default: 1536)
	Timeout           time.Duration `yaml:"-"`                   // Per-call timeout (default: 30s)
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Rate limit on backend calls (default: 10)
	RequestBurst      int           `yaml:"request_burst"`       // Rate limit burst size (default: 5)
	CacheSize         int64         `yaml:"cache_size"`          // Max cached embeddings (default: 4096)
}

// ResolutionConfig contains ingestion and conflict resolution tunables.
type ResolutionConfig struct {
	DupThreshold      float64 `yaml:"dup_threshold"`      // Similarity at or above which records are duplicates (default: 0.95)
	ConflictThreshold float64 `yaml:"conflict_threshold"` // Similarity at or above which records conflict (default: 0.85)
	AmbiguityMargin   float64 `yaml:"ambiguity_margin"`   // Similarity band above the conflict threshold where both records are kept (default: 0.02)
	NeighborK         int     `yaml:"neighbor_k"`         // Neighbors fetched per ingest (default: 5)
	MaxContentLength  int     `yaml:"max_content_length"` // Max content length in bytes (default: 65536)
}

// RetrievalConfig contains search scoring configuration.
type RetrievalConfig struct {
	SimilarityWeight float64 `yaml:"similarity_weight"` // Weight of vector similarity (default: 0.70)
	RecencyWeight    float64 `yaml:"recency_weight"`    // Weight of recency (default: 0.20)
	AccessWeight     float64 `yaml:"access_weight"`     // Weight of access frequency (default: 0.10)
	DefaultLimit     int     `yaml:"default_limit"`     // Default result count (default: 10)
}

// MaintenanceConfig contains maintenance cycle tunables.
type MaintenanceConfig struct {
	Interval         time.Duration `yaml:"-"`                  // Time between cycles (default: 24h)
	DecayRate        float64       `yaml:"decay_rate"`         // Daily importance decay multiplier (default: 0.98)
	ImportanceFloor  float64       `yaml:"importance_floor"`   // Decay never drops importance below this (default: 0.05)
	ArchiveThreshold float64       `yaml:"archive_threshold"`  // Importance below which records are archived (default: 0.2)
	ArchiveMinAge    time.Duration `yaml:"-"`                  // Min time since last access before archiving (default: 336h)
	BackfillBatch    int           `yaml:"backfill_batch"`     // Records backfilled per cycle (default: 100)
}

// UnmarshalYAML accepts duration values in Go syntax such as "30s".
func (c *EmbeddingConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw EmbeddingConfig
	aux := struct {
		*raw    `yaml:",inline"`
		Timeout string `yaml:"timeout"`
	}{raw: (*raw)(c)}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid embedding timeout %q: %w", aux.Timeout, err)
		}
		c.Timeout = d
	}
	return nil
}

// UnmarshalYAML accepts duration values in Go syntax such as "24h".
func (c *MaintenanceConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw MaintenanceConfig
	aux := struct {
		*raw          `yaml:",inline"`
		Interval      string `yaml:"interval"`
		ArchiveMinAge string `yaml:"archive_min_age"`
	}{raw: (*raw)(c)}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.Interval != "" {
		d, err := time.ParseDuration(aux.Interval)
		if err != nil {
			return fmt.Errorf("invalid maintenance interval %q: %w", aux.Interval, err)
		}
		c.Interval = d
	}
	if aux.ArchiveMinAge != "" {
		d, err := time.ParseDuration(aux.ArchiveMinAge)
		if err != nil {
			return fmt.Errorf("invalid archive min age %q: %w", aux.ArchiveMinAge, err)
		}
		c.ArchiveMinAge = d
	}
	return nil
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the AGENTMEM_ prefix.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads configuration from the environment, then applies
// the YAML file at path on top. File values take precedence over
// environment variables for keys present in the file.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres storage engine requires AGENTMEM_POSTGRES_DSN")
	}

	switch c.Embedding.Provider {
	case "ollama", "openai", "mock":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("config: embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}

	if c.Resolution.DupThreshold < 0 || c.Resolution.DupThreshold > 1 {
		return fmt.Errorf("config: dup threshold must be in [0, 1], got %f", c.Resolution.DupThreshold)
	}
	if c.Resolution.ConflictThreshold < 0 || c.Resolution.ConflictThreshold > 1 {
		return fmt.Errorf("config: conflict threshold must be in [0, 1], got %f", c.Resolution.ConflictThreshold)
	}
	if c.Resolution.ConflictThreshold > c.Resolution.DupThreshold {
		return fmt.Errorf("config: conflict threshold %f exceeds dup threshold %f",
			c.Resolution.ConflictThreshold, c.Resolution.DupThreshold)
	}
	if c.Resolution.AmbiguityMargin < 0 {
		return fmt.Errorf("config: ambiguity margin must be non-negative, got %f", c.Resolution.AmbiguityMargin)
	}
	if c.Resolution.NeighborK <= 0 {
		return fmt.Errorf("config: neighbor k must be positive, got %d", c.Resolution.NeighborK)
	}

	for name, w := range map[string]float64{
		"similarity": c.Retrieval.SimilarityWeight,
		"recency":    c.Retrieval.RecencyWeight,
		"access":     c.Retrieval.AccessWeight,
	} {
		if w < 0 {
			return fmt.Errorf("config: %s weight must be non-negative, got %f", name, w)
		}
	}
	if c.Retrieval.SimilarityWeight < c.Retrieval.RecencyWeight || c.Retrieval.SimilarityWeight < c.Retrieval.AccessWeight {
		return fmt.Errorf("config: similarity weight %f must dominate recency %f and access %f",
			c.Retrieval.SimilarityWeight, c.Retrieval.RecencyWeight, c.Retrieval.AccessWeight)
	}

	if c.Maintenance.DecayRate <= 0 || c.Maintenance.DecayRate > 1 {
		return fmt.Errorf("config: decay rate must be in (0, 1], got %f", c.Maintenance.DecayRate)
	}
	if c.Maintenance.ImportanceFloor < 0 || c.Maintenance.ImportanceFloor > 1 {
		return fmt.Errorf("config: importance floor must be in [0, 1], got %f", c.Maintenance.ImportanceFloor)
	}

	return nil
}

// buildBaseConfig constructs a Config with values from environment
// variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("AGENTMEM_PORT", 6464),
			Host: getEnv("AGENTMEM_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("AGENTMEM_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("AGENTMEM_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("AGENTMEM_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:          getEnv("AGENTMEM_EMBEDDING_PROVIDER", "ollama"),
			OllamaURL:         getEnv("AGENTMEM_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("AGENTMEM_OLLAMA_MODEL", "nomic-embed-text"),
			OpenAIBaseURL:     getEnv("AGENTMEM_OPENAI_BASE_URL", ""),
			OpenAIAPIKey:      getEnv("AGENTMEM_OPENAI_API_KEY", ""),
			OpenAIModel:       getEnv("AGENTMEM_OPENAI_MODEL", "text-embedding-3-small"),
			Dimensions:        getEnvInt("AGENTMEM_EMBEDDING_DIMENSIONS", 1536),
			Timeout:           getEnvDuration("AGENTMEM_EMBEDDING_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvFloat("AGENTMEM_EMBEDDING_RPS", 10),
			RequestBurst:      getEnvInt("AGENTMEM_EMBEDDING_BURST", 5),
			CacheSize:         int64(getEnvInt("AGENTMEM_EMBEDDING_CACHE_SIZE", 4096)),
		},
		Resolution: ResolutionConfig{
			DupThreshold:      getEnvFloat("AGENTMEM_DUP_THRESHOLD", 0.95),
			ConflictThreshold: getEnvFloat("AGENTMEM_CONFLICT_THRESHOLD", 0.85),
			AmbiguityMargin:   getEnvFloat("AGENTMEM_AMBIGUITY_MARGIN", 0.02),
			NeighborK:         getEnvInt("AGENTMEM_NEIGHBOR_K", 5),
			MaxContentLength:  getEnvInt("AGENTMEM_MAX_CONTENT_LENGTH", 65536),
		},
		Retrieval: RetrievalConfig{
			SimilarityWeight: getEnvFloat("AGENTMEM_SIMILARITY_WEIGHT", 0.70),
			RecencyWeight:    getEnvFloat("AGENTMEM_RECENCY_WEIGHT", 0.20),
			AccessWeight:     getEnvFloat("AGENTMEM_ACCESS_WEIGHT", 0.10),
			DefaultLimit:     getEnvInt("AGENTMEM_DEFAULT_LIMIT", 10),
		},
		Maintenance: MaintenanceConfig{
			Interval:         getEnvDuration("AGENTMEM_MAINTENANCE_INTERVAL", 24*time.Hour),
			DecayRate:        getEnvFloat("AGENTMEM_DECAY_RATE", 0.98),
			ImportanceFloor:  getEnvFloat("AGENTMEM_IMPORTANCE_FLOOR", 0.05),
			ArchiveThreshold: getEnvFloat("AGENTMEM_ARCHIVE_THRESHOLD", 0.2),
			ArchiveMinAge:    getEnvDuration("AGENTMEM_ARCHIVE_MIN_AGE", 14*24*time.Hour),
			BackfillBatch:    getEnvInt("AGENTMEM_BACKFILL_BATCH", 100),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as a
// float, it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a
// default value. Accepts Go duration syntax such as "30s" or "24h".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
