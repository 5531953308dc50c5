package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// sessionHeader carries the caller's session identity. Sessions are
// anonymous; the id just partitions data.
const sessionHeader = "X-Session-ID"

// DocumentResponse mirrors document.Document for API consumers.
type DocumentResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type"`
	FileSize     int64  `json:"file_size"`
	Status       string `json:"status"`
	ChunkCount   int    `json:"chunk_count"`
	ErrorMessage string `json:"error_message,omitempty"`
	IsSample     bool   `json:"is_sample"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// SearchRequest is the body for POST /api/v1/search.
type SearchRequest struct {
	Query          string   `json:"query"`
	TopK           int      `json:"top_k"`
	ScoreThreshold *float64 `json:"score_threshold"`
}

// SearchResponse is the body for POST /api/v1/search responses.
type SearchResponse struct {
	Results []retrieval.Result `json:"results"`
	Count   int                `json:"count"`
}

// QueryRequest is the body for POST /api/v1/query.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// ListResponse is the body for GET /api/v1/documents responses.
type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Count     int                `json:"count"`
}

func toDocumentResponse(d *document.Document) DocumentResponse {
	return DocumentResponse{
		ID:           d.ID,
		Filename:     d.Filename,
		ContentType:  d.ContentType,
		FileSize:     d.FileSize,
		Status:       string(d.Status),
		ChunkCount:   d.ChunkCount,
		ErrorMessage: d.ErrorMessage,
		IsSample:     d.IsSample,
		CreatedAt:    d.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:    d.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// sessionID extracts and validates the caller's session id.
func sessionID(c echo.Context) (string, error) {
	id := c.Request().Header.Get(sessionHeader)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, sessionHeader+" header is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, sessionHeader+" must be a UUID")
	}
	return id, nil
}

// mapError translates domain errors to HTTP status codes.
func mapError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrValidation), errors.Is(err, retrieval.ErrInvalidQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, document.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, ingest.ErrQueueFull):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is busy, retry later")
	case errors.Is(err, answer.ErrGeneration):
		return echo.NewHTTPError(http.StatusBadGateway, "answer generation failed")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func rateLimited() error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
}

func (s *Server) handleUpload(c echo.Context) error {
	session, err := sessionID(c)
	if err != nil {
		return err
	}
	if !s.limiter.Allow(session, "upload") {
		return rateLimited()
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not open uploaded file")
	}
	defer file.Close()

	// Read one byte past the cap to distinguish "at limit" from "over".
	content, err := io.ReadAll(io.LimitReader(file, s.config.Ingest.MaxFileSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}

	ctx := logging.ContextWithSessionID(c.Request().Context(), session)
	doc, err := s.ingest.Upload(ctx, ingest.UploadInput{
		SessionID:   session,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get(echo.HeaderContentType),
		Content:     content,
	})
	if err != nil {
		s.logger.Warn(ctx, "upload rejected", zap.Error(err))
		return mapError(err)
	}

	return c.JSON(http.StatusAccepted, toDocumentResponse(doc))
}

func (s *Server) handleList(c echo.Context) error {
	session, err := sessionID(c)
	if err != nil {
		return err
	}

	docs, err := s.ingest.List(c.Request().Context(), session)
	if err != nil {
		return mapError(err)
	}

	out := make([]DocumentResponse, len(docs))
	for n, d := range docs {
		out[n] = toDocumentResponse(d)
	}
	return c.JSON(http.StatusOK, ListResponse{Documents: out, Count: len(out)})
}

func (s *Server) handleGet(c echo.Context) error {
	session, err := sessionID(c)
	if err != nil {
		return err
	}

	doc, err := s.ingest.Get(c.Request().Context(), c.Param("id"), session)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleDelete(c echo.Context) error {
	session, err := sessionID(c)
	if err != nil {
		return err
	}

	ctx := logging.ContextWithSessionID(c.Request().Context(), session)
	if err := s.ingest.Delete(ctx, c.Param("id"), session); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSearch(c echo.Context) error {
	session, err := sessionID(c)
	if err != nil {
		return err
	}
	if !s.limiter.Allow(session, "search") {
		return rateLimited()
	}

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.config.Retrieval.TopK
	}
	threshold := s.config.Retrieval.ScoreThreshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}

	ctx := logging.ContextWithSessionID(c.Request().Context(), session)
	results, err := s.engine.Search(ctx, req.Query, session, topK, float32(threshold))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleQuery(c echo.Context) error {
	session, err := sessionID(c)
	if err != nil {
		return err
	}
	if !s.limiter.Allow(session, "query") {
		return rateLimited()
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.config.Retrieval.TopK
	}

	ctx := logging.ContextWithSessionID(c.Request().Context(), session)
	resp, err := s.synthesizer.Answer(ctx, req.Question, session, topK)
	if err != nil {
		s.logger.Error(ctx, "query failed", zap.Error(err))
		return mapError(err)
	}

	return c.JSON(http.StatusOK, resp)
}
