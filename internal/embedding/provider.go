// Package embedding provides clients for embedding generation backends.
// Remote providers are wrapped with circuit breaker protection, rate
// limiting, and a content-hash cache; every call carries a mandatory
// timeout so a stalled backend can never block ingestion or retrieval.
package embedding

import "context"

// Provider generates embeddings for text. Implementations must be
// idempotent: the same input yields the same vector, which makes retried
// backfills and caching safe.
type Provider interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed embedding dimension.
	Dimensions() int
}
