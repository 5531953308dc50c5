// Package embeddings turns text into fixed-dimension vectors.
//
// The same client must serve both ingestion and query time so the two
// sides share one embedding space.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrEmbeddingFailed indicates embedding generation failure after
	// retries were exhausted.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Client generates vector embeddings from text.
type Client interface {
	// EmbedDocuments generates embeddings for multiple texts, one per
	// input, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed output dimensionality.
	Dimension() int
}
