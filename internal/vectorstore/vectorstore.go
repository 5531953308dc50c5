// Package vectorstore provides the session-partitioned vector index.
//
// Partitions are payload-scoped: every entry carries its partition key
// (a session id, or the shared sample partition) and every query filters
// on it. Callers thread the partition explicitly through every call;
// there is no ambient tenant state.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the index backend is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector index")

	// ErrUpsertFailed indicates a write to the index failed after retries.
	ErrUpsertFailed = errors.New("vector upsert failed")

	// ErrQueryFailed indicates a nearest-neighbor query failed.
	ErrQueryFailed = errors.New("vector query failed")

	// ErrDeleteFailed indicates deleting a document's vectors failed.
	ErrDeleteFailed = errors.New("vector delete failed")
)

// Payload is the chunk metadata stored alongside each vector.
type Payload struct {
	DocumentID   string
	Filename     string
	ChunkIndex   int
	Text         string
	Partition    string
	DocCreatedAt time.Time
}

// Entry is one chunk vector to be upserted.
type Entry struct {
	ChunkID string
	Vector  []float32
	Payload Payload
}

// Match is one nearest-neighbor query hit; Score is cosine similarity,
// higher is better.
type Match struct {
	ChunkID string
	Score   float32
	Payload Payload
}

// Index stores chunk vectors and answers nearest-neighbor queries,
// partitioned by session.
type Index interface {
	// Upsert writes entries into the given partition. Entries carry
	// their partition in the payload; the partition argument is
	// authoritative and overwrites mismatching payloads.
	Upsert(ctx context.Context, partition string, entries []Entry) error

	// DeleteDocument removes every vector belonging to documentID from
	// the partition. Deleting an absent document is a no-op.
	DeleteDocument(ctx context.Context, partition, documentID string) error

	// Query returns up to k nearest neighbors of vector within the
	// partition, ordered by descending score.
	Query(ctx context.Context, partition string, vector []float32, k int) ([]Match, error)

	// Close releases backend resources.
	Close() error
}
