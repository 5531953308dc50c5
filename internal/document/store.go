package document

import "context"

// Store is the durable metadata store for documents.
//
// Status mutations (MarkProcessing, MarkIndexed, MarkFailed) are atomic
// single-row updates. Each reports whether the row still existed, which
// the ingestion pipeline uses as its cooperative-cancellation check: a
// document deleted mid-run simply stops matching, and the run abandons.
type Store interface {
	// Create inserts a new document record.
	Create(ctx context.Context, doc *Document) error

	// Get returns a document by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// List returns the session's documents plus all sample documents,
	// newest first.
	List(ctx context.Context, sessionID string) ([]*Document, error)

	// Delete removes a document row. Returns false if no row existed.
	Delete(ctx context.Context, id string) (bool, error)

	// MarkProcessing transitions the document to processing.
	// Returns false if the document no longer exists.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// MarkIndexed transitions the document to indexed with its final
	// chunk count, clearing any error message.
	// Returns false if the document no longer exists.
	MarkIndexed(ctx context.Context, id string, chunkCount int) (bool, error)

	// MarkFailed transitions the document to failed with a human-readable
	// error message, resetting the chunk count to zero.
	// Returns false if the document no longer exists.
	MarkFailed(ctx context.Context, id string, errorMessage string) (bool, error)

	// Exists reports whether the document row is still present.
	Exists(ctx context.Context, id string) (bool, error)

	// Close releases the underlying database handle.
	Close() error
}
