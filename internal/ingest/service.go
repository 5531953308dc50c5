// Package ingest runs the document ingestion pipeline: accepted uploads
// move through pending, processing and into indexed or failed, with the
// parse, chunk, embed and upsert stages executed by a bounded worker pool.
//
// Deletion is cooperative: a pipeline run re-checks that its document
// still exists before every store or index write, and abandons silently
// once the row is gone. A delete observed mid-run therefore never
// resurrects metadata or vectors.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/parser"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var (
	// ErrValidation is returned when an upload is rejected before any
	// state is created.
	ErrValidation = errors.New("validation failed")

	// ErrQueueFull is returned when the ingestion queue cannot accept
	// another upload.
	ErrQueueFull = errors.New("ingestion queue full")
)

// Pipeline run outcomes, used as metric label values.
const (
	outcomeIndexed   = "indexed"
	outcomeFailed    = "failed"
	outcomeAbandoned = "abandoned"
)

// UploadInput is one file submitted for ingestion.
type UploadInput struct {
	SessionID   string
	Filename    string
	ContentType string
	Content     []byte

	// IsSample routes the document into the shared sample partition.
	IsSample bool
}

type job struct {
	doc     *document.Document
	content []byte
}

// Service accepts uploads and drives them through the ingestion pipeline.
type Service struct {
	store    document.Store
	index    vectorstore.Index
	embedder embeddings.Client
	chunker  *chunker.Chunker
	cfg      config.IngestConfig
	logger   *logging.Logger

	queue chan job
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewService creates an ingestion service. Call Start before uploading.
func NewService(store document.Store, index vectorstore.Index, embedder embeddings.Client, cfg config.IngestConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:    store,
		index:    index,
		embedder: embedder,
		chunker:  chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		cfg:      cfg,
		logger:   logger.Named("ingest"),
		queue:    make(chan job, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers run until Stop is called and
// the queue drains; ctx bounds the individual pipeline operations.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for n := 0; n < s.cfg.Workers; n++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
}

// Stop closes the queue and waits for in-flight runs to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.stopped = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// enqueue attempts a non-blocking send. The stopped check and the send
// share one critical section: Stop closes the queue under the same
// mutex, so the channel can never close between check and send.
func (s *Service) enqueue(j job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrQueueFull
	}
	select {
	case s.queue <- j:
		QueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for j := range s.queue {
		QueueDepth.Dec()
		s.process(ctx, j)
	}
}

// Upload validates the input, records a pending document and enqueues a
// pipeline run. It returns before any processing happens; callers poll
// the document status.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*document.Document, error) {
	if err := validate(in, s.cfg.MaxFileSize); err != nil {
		UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	now := time.Now().UTC()
	doc := &document.Document{
		ID:          uuid.NewString(),
		Filename:    in.Filename,
		ContentType: in.ContentType,
		FileSize:    int64(len(in.Content)),
		Status:      document.StatusPending,
		IsSample:    in.IsSample,
		SessionID:   in.SessionID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, doc); err != nil {
		UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("recording upload: %w", err)
	}

	if err := s.enqueue(job{doc: doc, content: in.Content}); err != nil {
		_, _ = s.store.Delete(ctx, doc.ID)
		UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	UploadsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info(ctx, "upload accepted",
		zap.String("document.id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int64("size_bytes", doc.FileSize),
	)
	return doc, nil
}

func validate(in UploadInput, maxFileSize int64) error {
	if in.SessionID == "" {
		return fmt.Errorf("%w: session id required", ErrValidation)
	}
	if in.Filename == "" {
		return fmt.Errorf("%w: filename required", ErrValidation)
	}
	if len(in.Content) == 0 {
		return fmt.Errorf("%w: file is empty", ErrValidation)
	}
	if int64(len(in.Content)) > maxFileSize {
		return fmt.Errorf("%w: file exceeds maximum size of %d bytes", ErrValidation, maxFileSize)
	}
	if !parser.Supported(in.ContentType, in.Filename) {
		return fmt.Errorf("%w: unsupported content type %q", ErrValidation, in.ContentType)
	}
	return nil
}

// Get returns a document visible to the session: its own uploads plus
// samples. Anything else is ErrNotFound.
func (s *Service) Get(ctx context.Context, id, sessionID string) (*document.Document, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsSample && doc.SessionID != sessionID {
		return nil, document.ErrNotFound
	}
	return doc, nil
}

// List returns the session's documents plus all samples, newest first.
func (s *Service) List(ctx context.Context, sessionID string) ([]*document.Document, error) {
	return s.store.List(ctx, sessionID)
}

// Delete removes a document and its vectors. Sample documents and other
// sessions' documents are reported as not found. The metadata row goes
// first so that any in-flight pipeline run abandons before its next
// write; the vector cleanup that follows is best effort.
func (s *Service) Delete(ctx context.Context, id, sessionID string) error {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.IsSample || doc.SessionID != sessionID {
		return document.ErrNotFound
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if !deleted {
		return document.ErrNotFound
	}

	if err := s.index.DeleteDocument(ctx, doc.Partition(), id); err != nil {
		s.logger.Warn(ctx, "vector cleanup failed after delete",
			zap.String("document.id", id),
			zap.Error(err),
		)
	}

	s.logger.Info(ctx, "document deleted", zap.String("document.id", id))
	return nil
}

func (s *Service) process(ctx context.Context, j job) {
	start := time.Now()
	ctx = logging.ContextWithDocumentID(ctx, j.doc.ID)
	ctx = logging.ContextWithSessionID(ctx, j.doc.SessionID)

	outcome := s.run(ctx, j)
	DocumentsTotal.WithLabelValues(outcome).Inc()
	PipelineDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug(ctx, "pipeline run finished",
		zap.String("outcome", outcome),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// run executes the pipeline for one document and returns the outcome.
func (s *Service) run(ctx context.Context, j job) string {
	doc := j.doc
	partition := doc.Partition()

	ok, err := s.store.MarkProcessing(ctx, doc.ID)
	if err != nil {
		s.logger.Error(ctx, "marking document processing", zap.Error(err))
		return s.fail(ctx, doc, "internal: could not start processing")
	}
	if !ok {
		return outcomeAbandoned
	}

	text, err := s.parse(ctx, j)
	if err != nil {
		return s.fail(ctx, doc, "parse: "+failureMessage(err))
	}

	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		return s.fail(ctx, doc, "parse: no extractable text")
	}

	if !s.alive(ctx, doc.ID) {
		return outcomeAbandoned
	}

	// Re-ingestion must never leave stale chunks behind.
	if err := s.index.DeleteDocument(ctx, partition, doc.ID); err != nil {
		return s.fail(ctx, doc, "index: "+failureMessage(err))
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Text
	}

	embedCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.EmbedTimeout))
	vectors, err := s.embedder.EmbedDocuments(embedCtx, texts)
	cancel()
	if err != nil {
		return s.fail(ctx, doc, "embed: "+failureMessage(err))
	}
	if len(vectors) != len(chunks) {
		return s.fail(ctx, doc, fmt.Sprintf("embed: got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	if !s.alive(ctx, doc.ID) {
		return outcomeAbandoned
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for n, c := range chunks {
		entries[n] = vectorstore.Entry{
			ChunkID: ChunkID(doc.ID, c.Index),
			Vector:  vectors[n],
			Payload: vectorstore.Payload{
				DocumentID:   doc.ID,
				Filename:     doc.Filename,
				ChunkIndex:   c.Index,
				Text:         c.Text,
				Partition:    partition,
				DocCreatedAt: doc.CreatedAt,
			},
		}
	}

	if err := s.index.Upsert(ctx, partition, entries); err != nil {
		return s.fail(ctx, doc, "index: "+failureMessage(err))
	}

	ok, err = s.store.MarkIndexed(ctx, doc.ID, len(chunks))
	if err != nil {
		s.logger.Error(ctx, "marking document indexed", zap.Error(err))
		return s.fail(ctx, doc, "internal: could not record completion")
	}
	if !ok {
		// Deleted during the upsert; take the vectors back out.
		_ = s.index.DeleteDocument(ctx, partition, doc.ID)
		return outcomeAbandoned
	}

	ChunksIndexed.Add(float64(len(chunks)))
	s.logger.Info(ctx, "document indexed",
		zap.String("filename", doc.Filename),
		zap.Int("chunks", len(chunks)),
	)
	return outcomeIndexed
}

// parse extracts text under the configured stage timeout. Extraction
// itself is not context-aware, so a run that outlives the deadline is
// left to finish in the background and its result discarded.
func (s *Service) parse(ctx context.Context, j job) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ParseTimeout))
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := parser.Parse(j.content, j.doc.ContentType, j.doc.Filename)
		ch <- result{text: text, err: err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("timed out after %s", time.Duration(s.cfg.ParseTimeout))
	}
}

// alive reports whether the document row still exists. Lookup errors
// count as alive; the next write will surface them.
func (s *Service) alive(ctx context.Context, id string) bool {
	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		s.logger.Warn(ctx, "existence check failed", zap.Error(err))
		return true
	}
	return exists
}

// fail cleans up any vectors written so far and records the failure.
// If the document vanished in the meantime the run abandons instead.
func (s *Service) fail(ctx context.Context, doc *document.Document, msg string) string {
	_ = s.index.DeleteDocument(ctx, doc.Partition(), doc.ID)

	ok, err := s.store.MarkFailed(ctx, doc.ID, msg)
	if err != nil {
		s.logger.Error(ctx, "marking document failed", zap.Error(err))
		return outcomeFailed
	}
	if !ok {
		return outcomeAbandoned
	}

	s.logger.Warn(ctx, "document failed",
		zap.String("filename", doc.Filename),
		zap.String("reason", msg),
	)
	return outcomeFailed
}

// failureMessage flattens an error into the human-readable form stored
// on the document row.
func failureMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// ChunkID derives the deterministic vector id for one chunk of a
// document, stable across re-ingestion runs.
func ChunkID(documentID string, index int) string {
	name := fmt.Sprintf("%s_%d", documentID, index)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}
