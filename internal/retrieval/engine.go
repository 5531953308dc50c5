// Package retrieval answers similarity searches over a session's indexed
// chunks. Every search fans in over two partitions: the session's own and
// the shared sample partition, merged and ranked as one result set.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// ErrInvalidQuery is returned when search parameters are out of range.
var ErrInvalidQuery = errors.New("invalid query")

// Result is one retrieved chunk with its similarity score.
type Result struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// Engine embeds queries and ranks matches from the vector index.
type Engine struct {
	index    vectorstore.Index
	embedder embeddings.Client
	logger   *logging.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(index vectorstore.Index, embedder embeddings.Client, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{index: index, embedder: embedder, logger: logger.Named("retrieval")}
}

// Search returns up to topK chunks scoring at or above scoreThreshold,
// drawn from the session's partition and the sample partition. Results
// are ordered by score descending; ties break toward the more recently
// uploaded document, then the earlier chunk within it. An empty result
// set is a valid answer, not an error.
func (e *Engine) Search(ctx context.Context, query, sessionID string, topK int, scoreThreshold float32) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id required", ErrInvalidQuery)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidQuery, topK)
	}
	if scoreThreshold < 0 || scoreThreshold > 1 {
		return nil, fmt.Errorf("%w: score threshold must be in [0, 1], got %g", ErrInvalidQuery, scoreThreshold)
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	partitions := []string{sessionID, document.SamplePartition}
	if sessionID == document.SamplePartition {
		partitions = partitions[:1]
	}

	var matches []vectorstore.Match
	for _, partition := range partitions {
		found, err := e.index.Query(ctx, partition, vector, topK)
		if err != nil {
			return nil, fmt.Errorf("querying partition %s: %w", partition, err)
		}
		matches = append(matches, found...)
	}

	results := rank(matches, topK, scoreThreshold)

	e.logger.Debug(ctx, "search complete",
		zap.Int("candidates", len(matches)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// rank filters below-threshold matches, orders the rest and truncates
// to topK.
func rank(matches []vectorstore.Match, topK int, scoreThreshold float32) []Result {
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= scoreThreshold {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Payload.DocCreatedAt.Equal(b.Payload.DocCreatedAt) {
			return a.Payload.DocCreatedAt.After(b.Payload.DocCreatedAt)
		}
		return a.Payload.ChunkIndex < b.Payload.ChunkIndex
	})

	if len(kept) > topK {
		kept = kept[:topK]
	}

	results := make([]Result, len(kept))
	for n, m := range kept {
		results[n] = Result{
			ChunkID:    m.ChunkID,
			DocumentID: m.Payload.DocumentID,
			Filename:   m.Payload.Filename,
			Text:       m.Payload.Text,
			Score:      m.Score,
			ChunkIndex: m.Payload.ChunkIndex,
		}
	}
	return results
}
