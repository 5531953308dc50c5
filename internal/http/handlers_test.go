package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ratelimit"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// staticEmbedder returns the same vector for every text, so any stored
// chunk matches any query with similarity 1.
type staticEmbedder struct{}

func (staticEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (staticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (staticEmbedder) Dimension() int { return 3 }

type staticCompleter struct{ reply string }

func (c staticCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return c.reply, nil
}

func newTestServer(t *testing.T, rateCfg config.RateLimitConfig) *Server {
	t.Helper()

	store, err := document.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	index, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 0
	cfg.Ingest = config.IngestConfig{
		Workers:      2,
		QueueSize:    8,
		ChunkSize:    2000,
		ChunkOverlap: 200,
		MaxFileSize:  1024 * 1024,
		ParseTimeout: config.Duration(5 * time.Second),
		EmbedTimeout: config.Duration(5 * time.Second),
	}
	cfg.Retrieval = config.RetrievalConfig{TopK: 10, ScoreThreshold: 0.35}
	cfg.RateLimit = rateCfg

	ingestSvc := ingest.NewService(store, index, staticEmbedder{}, cfg.Ingest, logging.NewNop())
	ingestSvc.Start(context.Background())
	t.Cleanup(ingestSvc.Stop)

	engine := retrieval.NewEngine(index, staticEmbedder{}, logging.NewNop())
	synth := answer.NewSynthesizer(engine, staticCompleter{reply: "a grounded answer"}, logging.NewNop())

	limiter := ratelimit.New(cfg.RateLimit)
	t.Cleanup(limiter.Close)

	srv, err := NewServer(ingestSvc, engine, synth, limiter, logging.NewNop(), cfg)
	require.NoError(t, err)
	return srv
}

func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func doRequest(srv *Server, method, path, session string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func uploadFile(t *testing.T, srv *Server, session, filename, contentType, content string) DocumentResponse {
	t.Helper()
	body, bodyType := multipartBody(t, filename, contentType, content)
	rec := doRequest(srv, http.MethodPost, "/api/v1/documents", session, body, bodyType)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var doc DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return doc
}

func waitIndexed(t *testing.T, srv *Server, session, id string) DocumentResponse {
	t.Helper()
	var doc DocumentResponse
	require.Eventually(t, func() bool {
		rec := doRequest(srv, http.MethodGet, "/api/v1/documents/"+id, session, nil, "")
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
			return false
		}
		return doc.Status == string(document.StatusIndexed)
	}, 5*time.Second, 10*time.Millisecond)
	return doc
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec := doRequest(srv, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionHeaderRequired(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/documents", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/documents", "not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAndPoll(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	session := uuid.NewString()

	doc := uploadFile(t, srv, session, "notes.txt", "text/plain", "Some note text that is long enough to index properly.")
	assert.Equal(t, string(document.StatusPending), doc.Status)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.NotEmpty(t, doc.ID)

	indexed := waitIndexed(t, srv, session, doc.ID)
	assert.Equal(t, 1, indexed.ChunkCount)
}

func TestUpload_RejectsUnsupportedType(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	body, bodyType := multipartBody(t, "cat.png", "image/png", "binary-ish")
	rec := doRequest(srv, http.MethodPost, "/api/v1/documents", uuid.NewString(), body, bodyType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_RequiresFileField(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("other", "value"))
	require.NoError(t, w.Close())

	rec := doRequest(srv, http.MethodPost, "/api/v1/documents", uuid.NewString(), &buf, w.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListScopedToSession(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	sessionA := uuid.NewString()
	sessionB := uuid.NewString()

	uploadFile(t, srv, sessionA, "mine.txt", "text/plain", "Content belonging to session A, reasonably sized.")

	rec := doRequest(srv, http.MethodGet, "/api/v1/documents", sessionB, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Zero(t, list.Count)

	rec = doRequest(srv, http.MethodGet, "/api/v1/documents", sessionA, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
}

func TestGetMissingDocument(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/documents/"+uuid.NewString(), uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDocument(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	session := uuid.NewString()

	doc := uploadFile(t, srv, session, "notes.txt", "text/plain", "Deletable content with enough words to form a chunk.")
	waitIndexed(t, srv, session, doc.ID)

	rec := doRequest(srv, http.MethodDelete, "/api/v1/documents/"+doc.ID, session, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/documents/"+doc.ID, session, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete_ForeignSession(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	owner := uuid.NewString()

	doc := uploadFile(t, srv, owner, "notes.txt", "text/plain", "Content that another session must not be able to remove.")
	waitIndexed(t, srv, owner, doc.ID)

	rec := doRequest(srv, http.MethodDelete, "/api/v1/documents/"+doc.ID, uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	session := uuid.NewString()

	doc := uploadFile(t, srv, session, "notes.txt", "text/plain", "The capital of France is Paris, a well known fact.")
	waitIndexed(t, srv, session, doc.ID)

	body := bytes.NewBufferString(`{"query": "capital of France", "top_k": 5}`)
	rec := doRequest(srv, http.MethodPost, "/api/v1/search", session, body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, doc.ID, resp.Results[0].DocumentID)
	assert.Equal(t, "notes.txt", resp.Results[0].Filename)
}

func TestSearch_InvalidThreshold(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	body := bytes.NewBufferString(`{"query": "q", "top_k": 5, "score_threshold": 1.5}`)
	rec := doRequest(srv, http.MethodPost, "/api/v1/search", uuid.NewString(), body, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	session := uuid.NewString()

	doc := uploadFile(t, srv, session, "notes.txt", "text/plain", "Ragd stores chunk vectors in a session-scoped index.")
	waitIndexed(t, srv, session, doc.ID)

	body := bytes.NewBufferString(`{"question": "where are vectors stored?"}`)
	rec := doRequest(srv, http.MethodPost, "/api/v1/query", session, body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp answer.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a grounded answer", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, doc.ID, resp.Sources[0].DocumentID)
}

func TestQuery_NoResults(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	body := bytes.NewBufferString(`{"question": "anything at all?"}`)
	rec := doRequest(srv, http.MethodPost, "/api/v1/query", uuid.NewString(), body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp answer.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, answer.NoResultsAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{
		Enabled:  true,
		Requests: 2,
		Window:   config.Duration(time.Minute),
	})
	session := uuid.NewString()

	body := func() *bytes.Buffer { return bytes.NewBufferString(`{"query": "q", "top_k": 5}`) }

	for i := 0; i < 2; i++ {
		rec := doRequest(srv, http.MethodPost, "/api/v1/search", session, body(), "application/json")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(srv, http.MethodPost, "/api/v1/search", session, body(), "application/json")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different session has its own budget.
	rec = doRequest(srv, http.MethodPost, "/api/v1/search", uuid.NewString(), body(), "application/json")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec := doRequest(srv, http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
