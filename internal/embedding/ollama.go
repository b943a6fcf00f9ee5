package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaConfig configures an Ollama embedding client.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Breaker    CircuitBreakerConfig
}

// OllamaClient generates embeddings through a local Ollama instance.
type OllamaClient struct {
	baseURL    string
	model      string
	dimensions int
	timeout    time.Duration
	httpClient *http.Client
	breaker    *CircuitBreaker
}

// NewOllamaClient creates an Ollama embedding client.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &OllamaClient{
		baseURL:    config.BaseURL,
		model:      config.Model,
		dimensions: config.Dimensions,
		timeout:    config.Timeout,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    NewCircuitBreaker("ollama", config.Breaker),
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// Dimensions returns the configured embedding dimension.
func (c *OllamaClient) Dimensions() int {
	return c.dimensions
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(detail))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(embedResp.Embeddings) == 0 || len(embedResp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	vec := embedResp.Embeddings[0]
	if c.dimensions > 0 && len(vec) != c.dimensions {
		return nil, fmt.Errorf("ollama returned %d dimensions, expected %d", len(vec), c.dimensions)
	}
	return vec, nil
}
