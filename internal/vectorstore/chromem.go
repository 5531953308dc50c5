package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// chunkCollection is the single collection holding all chunk vectors;
// partitioning happens through metadata filtering.
const chunkCollection = "ragd_chunks"

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means
	// in-memory only (used by tests).
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemIndex is an Index backed by chromem-go, an embeddable vector
// database with no external service dependency. It is the default
// backend: a single binary serves uploads and queries with vectors
// persisted to disk.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex creates a ChromemIndex with the given configuration.
func NewChromemIndex(cfg ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	}

	// Vectors are always supplied by the caller, so the embedding
	// function must never run.
	collection, err := db.GetOrCreateCollection(chunkCollection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", chunkCollection, err)
	}

	return &ChromemIndex{db: db, collection: collection, logger: logger}, nil
}

// rejectEmbedding guards against accidental text-based calls; all
// operations pass precomputed vectors.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("vectorstore requires precomputed embeddings")
}

// Upsert writes entries into the given partition.
func (i *ChromemIndex) Upsert(ctx context.Context, partition string, entries []Entry) error {
	if partition == "" {
		return fmt.Errorf("%w: partition required", ErrInvalidConfig)
	}
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for n, e := range entries {
		e.Payload.Partition = partition
		docs[n] = chromem.Document{
			ID:        e.ChunkID,
			Content:   e.Payload.Text,
			Metadata:  payloadToMetadata(e.Payload),
			Embedding: e.Vector,
		}
	}

	// Concurrency 1: embeddings are precomputed, AddDocuments only stores.
	if err := i.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}

	i.logger.Debug("upserted chunk vectors",
		zap.String("partition", partition),
		zap.Int("count", len(entries)),
	)
	return nil
}

// DeleteDocument removes every vector belonging to documentID from the
// partition.
func (i *ChromemIndex) DeleteDocument(ctx context.Context, partition, documentID string) error {
	where := map[string]string{
		"partition":   partition,
		"document_id": documentID,
	}
	if err := i.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// Query returns up to k nearest neighbors of vector within the partition.
func (i *ChromemIndex) Query(ctx context.Context, partition string, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	// chromem requires nResults <= stored document count.
	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	where := map[string]string{"partition": partition}
	results, err := i.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	matches := make([]Match, len(results))
	for n, r := range results {
		matches[n] = Match{
			ChunkID: r.ID,
			Score:   r.Similarity,
			Payload: metadataToPayload(r.Metadata, r.Content),
		}
	}
	return matches, nil
}

// Close persists nothing extra; chromem flushes on write.
func (i *ChromemIndex) Close() error {
	return nil
}

func payloadToMetadata(p Payload) map[string]string {
	return map[string]string{
		"document_id":    p.DocumentID,
		"filename":       p.Filename,
		"chunk_index":    strconv.Itoa(p.ChunkIndex),
		"partition":      p.Partition,
		"doc_created_at": strconv.FormatInt(p.DocCreatedAt.UnixNano(), 10),
	}
}

func metadataToPayload(m map[string]string, content string) Payload {
	chunkIndex, _ := strconv.Atoi(m["chunk_index"])
	createdNanos, _ := strconv.ParseInt(m["doc_created_at"], 10, 64)
	return Payload{
		DocumentID:   m["document_id"],
		Filename:     m["filename"],
		ChunkIndex:   chunkIndex,
		Text:         content,
		Partition:    m["partition"],
		DocCreatedAt: time.Unix(0, createdNanos).UTC(),
	}
}
