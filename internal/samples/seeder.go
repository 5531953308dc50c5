// Package samples seeds shared example documents into the sample
// partition at startup.
package samples

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Seeder ingests sample documents visible to every session.
type Seeder struct {
	service *ingest.Service
	store   document.Store
	logger  *logging.Logger
}

// NewSeeder creates a seeder over the ingestion service.
func NewSeeder(service *ingest.Service, store document.Store, logger *logging.Logger) *Seeder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Seeder{service: service, store: store, logger: logger.Named("samples")}
}

// Seed uploads every .txt and .md file in dir into the sample partition,
// skipping filenames that already have a sample document. Seeding is
// asynchronous like any other upload; documents become searchable once
// the pipeline indexes them.
func (s *Seeder) Seed(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading seed directory %s: %w", dir, err)
	}

	existing, err := s.existingSamples(ctx)
	if err != nil {
		return err
	}

	seeded, skipped := 0, 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		contentType, ok := seedContentType(name)
		if !ok {
			continue
		}
		if existing[name] {
			s.logger.Debug(ctx, "sample already present", zap.String("filename", name))
			skipped++
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("reading sample %s: %w", name, err)
		}

		_, err = s.service.Upload(ctx, ingest.UploadInput{
			SessionID:   document.SamplePartition,
			Filename:    name,
			ContentType: contentType,
			Content:     content,
			IsSample:    true,
		})
		if err != nil {
			return fmt.Errorf("seeding sample %s: %w", name, err)
		}
		seeded++
	}

	s.logger.Info(ctx, "sample seeding complete",
		zap.String("dir", dir),
		zap.Int("seeded", seeded),
		zap.Int("skipped", skipped),
	)
	return nil
}

// existingSamples returns the filenames of all current sample documents.
func (s *Seeder) existingSamples(ctx context.Context) (map[string]bool, error) {
	docs, err := s.store.List(ctx, document.SamplePartition)
	if err != nil {
		return nil, fmt.Errorf("listing sample documents: %w", err)
	}
	names := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.IsSample {
			names[d.Filename] = true
		}
	}
	return names, nil
}

func seedContentType(filename string) (string, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return "text/plain", true
	case ".md":
		return "text/markdown", true
	default:
		return "", false
	}
}
