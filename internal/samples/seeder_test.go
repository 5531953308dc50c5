package samples

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type unitEmbedder struct{}

func (unitEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (unitEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (unitEmbedder) Dimension() int { return 3 }

func newSeederHarness(t *testing.T, logger *logging.Logger) (*Seeder, document.Store) {
	t.Helper()

	store, err := document.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	index, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)

	svc := ingest.NewService(store, index, unitEmbedder{}, config.IngestConfig{
		Workers:      1,
		QueueSize:    8,
		ChunkSize:    2000,
		ChunkOverlap: 200,
		MaxFileSize:  1024 * 1024,
		ParseTimeout: config.Duration(5 * time.Second),
		EmbedTimeout: config.Duration(5 * time.Second),
	}, logging.NewNop())
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)

	return NewSeeder(svc, store, logger), store
}

func writeSeedDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}
	return dir
}

func TestSeed_IngestsTextAndMarkdown(t *testing.T) {
	seeder, store := newSeederHarness(t, logging.NewNop())
	ctx := context.Background()

	dir := writeSeedDir(t, map[string]string{
		"guide.md":   "# Guide\n\nHow to use this service, explained at length.",
		"notes.txt":  "Plain text sample content that should be indexed for everyone.",
		"image.png":  "not a document",
		"README":     "no extension, skipped",
	})

	require.NoError(t, seeder.Seed(ctx, dir))

	docs, err := store.List(ctx, document.SamplePartition)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.True(t, d.IsSample)
		assert.Contains(t, []string{"guide.md", "notes.txt"}, d.Filename)
	}
}

func TestSeed_SkipsExistingFilenames(t *testing.T) {
	seeder, store := newSeederHarness(t, logging.NewNop())
	ctx := context.Background()

	dir := writeSeedDir(t, map[string]string{
		"guide.md": "Sample content, first pass of the seeder run.",
	})

	require.NoError(t, seeder.Seed(ctx, dir))
	require.NoError(t, seeder.Seed(ctx, dir))

	docs, err := store.List(ctx, document.SamplePartition)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "re-seeding must not duplicate samples")
}

func TestSeed_ReportsPerRunSkipCount(t *testing.T) {
	logger := logging.NewTestLogger()
	seeder, _ := newSeederHarness(t, logger.Logger)
	ctx := context.Background()

	dir := writeSeedDir(t, map[string]string{
		"guide.md":  "Sample content, seeded on the first pass.",
		"notes.txt": "More sample content, also seeded on the first pass.",
	})

	require.NoError(t, seeder.Seed(ctx, dir))
	require.NoError(t, seeder.Seed(ctx, dir))

	// The first pass skips nothing; the second skips exactly the two
	// files it finds already seeded.
	var skipped []int64
	for _, entry := range logger.All() {
		if entry.Message != "sample seeding complete" {
			continue
		}
		for _, field := range entry.Context {
			if field.Key == "skipped" {
				skipped = append(skipped, field.Integer)
			}
		}
	}
	assert.Equal(t, []int64{0, 2}, skipped)
}

func TestSeed_MissingDirectory(t *testing.T) {
	seeder, _ := newSeederHarness(t, logging.NewNop())

	err := seeder.Seed(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
