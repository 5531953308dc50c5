// Package document defines the document metadata model and its durable store.
//
// A Document is the pollable record of one uploaded file's lifecycle. The
// ingestion pipeline is the only writer of Status, ChunkCount and
// ErrorMessage; everything else reads.
package document

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist or belongs to a
// different session.
var ErrNotFound = errors.New("document not found")

// Status is the lifecycle state of a document.
type Status string

const (
	// StatusPending means the upload was accepted but processing has not started.
	StatusPending Status = "pending"
	// StatusProcessing means a pipeline run is working on the document.
	StatusProcessing Status = "processing"
	// StatusIndexed is the terminal success state.
	StatusIndexed Status = "indexed"
	// StatusFailed is the terminal error state; ErrorMessage explains why.
	StatusFailed Status = "failed"
)

// SamplePartition is the shared partition for pre-seeded sample documents,
// visible to every session.
const SamplePartition = "sample"

// Document is one uploaded file's metadata record.
//
// Invariants: ChunkCount > 0 iff Status == indexed; ErrorMessage is
// non-empty iff Status == failed.
type Document struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	FileSize     int64     `json:"file_size"`
	Status       Status    `json:"status"`
	ChunkCount   int       `json:"chunk_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	IsSample     bool      `json:"is_sample"`
	SessionID    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Partition returns the vector index partition that owns this document's
// chunks: the sample partition for samples, the session id otherwise.
func (d *Document) Partition() string {
	if d.IsSample {
		return SamplePartition
	}
	return d.SessionID
}
