package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	filename      TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	file_size     INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	chunk_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	is_sample     INTEGER NOT NULL DEFAULT 0,
	session_id    TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id);
CREATE INDEX IF NOT EXISTS idx_documents_sample ON documents(is_sample);
`

// SQLiteStore is a Store backed by an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the metadata database in dataDir.
// If dataDir is empty, defaults to ~/.local/share/ragd.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share", "ragd")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "documents.db")

	// WAL mode allows status polling to proceed concurrently with
	// pipeline writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Create inserts a new document record.
func (s *SQLiteStore) Create(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, content_type, file_size, status, chunk_count, error_message, is_sample, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Filename, doc.ContentType, doc.FileSize, string(doc.Status),
		doc.ChunkCount, nullString(doc.ErrorMessage), boolToInt(doc.IsSample),
		doc.SessionID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, content_type, file_size, status, chunk_count, error_message, is_sample, session_id, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// List returns the session's documents plus all samples, newest first.
func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, content_type, file_size, status, chunk_count, error_message, is_sample, session_id, created_at, updated_at
		FROM documents
		WHERE session_id = ? OR is_sample = 1
		ORDER BY created_at DESC, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document row.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	return n > 0, nil
}

// MarkProcessing transitions the document to processing.
func (s *SQLiteStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	return s.update(ctx, `
		UPDATE documents SET status = ?, updated_at = ? WHERE id = ?
	`, string(StatusProcessing), time.Now().UTC(), id)
}

// MarkIndexed transitions the document to indexed with its chunk count.
func (s *SQLiteStore) MarkIndexed(ctx context.Context, id string, chunkCount int) (bool, error) {
	return s.update(ctx, `
		UPDATE documents SET status = ?, chunk_count = ?, error_message = NULL, updated_at = ? WHERE id = ?
	`, string(StatusIndexed), chunkCount, time.Now().UTC(), id)
}

// MarkFailed transitions the document to failed with an error message.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, errorMessage string) (bool, error) {
	return s.update(ctx, `
		UPDATE documents SET status = ?, chunk_count = 0, error_message = ?, updated_at = ? WHERE id = ?
	`, string(StatusFailed), errorMessage, time.Now().UTC(), id)
}

// Exists reports whether the document row is still present.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking document existence: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) update(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating document: %w", err)
	}
	return n > 0, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var status string
	var errorMessage sql.NullString
	var isSample int
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.FileSize,
		&status, &doc.ChunkCount, &errorMessage, &isSample, &doc.SessionID,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Status = Status(status)
	doc.ErrorMessage = errorMessage.String
	doc.IsSample = isSample != 0
	return &doc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
