package document

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestDoc(sessionID string) *Document {
	return &Document{
		ID:          uuid.NewString(),
		Filename:    "notes.txt",
		ContentType: "text/plain",
		FileSize:    42,
		SessionID:   sessionID,
	}
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newTestDoc("session-a")
	require.NoError(t, store.Create(ctx, doc))

	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "notes.txt", got.Filename)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.ChunkCount)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, "session-a", got.SessionID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListScopedToSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mine := newTestDoc("session-a")
	theirs := newTestDoc("session-b")
	sample := newTestDoc(SamplePartition)
	sample.IsSample = true

	require.NoError(t, store.Create(ctx, mine))
	require.NoError(t, store.Create(ctx, theirs))
	require.NoError(t, store.Create(ctx, sample))

	docs, err := store.List(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	ids := []string{docs[0].ID, docs[1].ID}
	assert.Contains(t, ids, mine.ID)
	assert.Contains(t, ids, sample.ID)
	assert.NotContains(t, ids, theirs.ID)
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := newTestDoc("session-a")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newTestDoc("session-a")
	newer.CreatedAt = time.Now().UTC()

	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	docs, err := store.List(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, newer.ID, docs[0].ID)
	assert.Equal(t, older.ID, docs[1].ID)
}

func TestSQLiteStore_StatusTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newTestDoc("session-a")
	require.NoError(t, store.Create(ctx, doc))

	ok, err := store.MarkProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)

	ok, err = store.MarkIndexed(ctx, doc.ID, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, got.Status)
	assert.Equal(t, 7, got.ChunkCount)
	assert.Empty(t, got.ErrorMessage)
}

func TestSQLiteStore_MarkFailedResetsChunkCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newTestDoc("session-a")
	require.NoError(t, store.Create(ctx, doc))

	_, err := store.MarkIndexed(ctx, doc.ID, 5)
	require.NoError(t, err)

	ok, err := store.MarkFailed(ctx, doc.ID, "parse: unreadable content")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 0, got.ChunkCount)
	assert.Equal(t, "parse: unreadable content", got.ErrorMessage)
}

func TestSQLiteStore_UpdatesOnMissingRowReportFalse(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.MarkProcessing(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.MarkIndexed(ctx, "gone", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.MarkFailed(ctx, "gone", "whatever")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_DeleteAndExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newTestDoc("session-a")
	require.NoError(t, store.Create(ctx, doc))

	exists, err := store.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := store.Delete(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err = store.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	deleted, err = store.Delete(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	docs, err := store.List(ctx, "session-a")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocument_Partition(t *testing.T) {
	doc := &Document{SessionID: "session-a"}
	assert.Equal(t, "session-a", doc.Partition())

	doc.IsSample = true
	assert.Equal(t, SamplePartition, doc.Partition())
}
