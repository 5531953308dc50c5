package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

const (
	// batchSize is the number of texts sent per embeddings request.
	batchSize = 50

	// maxTextChars truncates individual texts to stay under the API's
	// per-input token limit; token density varies by content, so this
	// is conservative.
	maxTextChars = 20000

	// maxRetries bounds retry attempts on rate-limit errors.
	maxRetries = 3

	// baseBackoff is the initial wait before a retry; doubled each attempt.
	baseBackoff = 2 * time.Second

	// maxBackoff caps the exponential backoff wait.
	maxBackoff = 32 * time.Second
)

// ErrAPIKeyNotSet is returned when no OpenAI API key is configured.
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// OpenAIClient is a Client backed by the OpenAI embeddings API.
type OpenAIClient struct {
	client    openai.Client
	model     string
	dimension int
	timeout   time.Duration
	limiter   *rate.Limiter
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates an embeddings client from config. Extra request
// options are appended after the API key, so they can override defaults.
func NewOpenAIClient(cfg config.OpenAIConfig, opts ...option.RequestOption) (*OpenAIClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, ErrAPIKeyNotSet
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey.Value())}, opts...)
	return &OpenAIClient{
		client:    openai.NewClient(clientOpts...),
		model:     cfg.EmbeddingModel,
		dimension: cfg.EmbeddingDimension,
		timeout:   cfg.RequestTimeout.Duration(),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// Dimension returns the fixed output dimensionality.
func (c *OpenAIClient) Dimension() int {
	return c.dimension
}

// EmbedQuery generates an embedding for a single query string.
func (c *OpenAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments generates embeddings for multiple texts, batching
// requests to stay under the API's input limits.
func (c *OpenAIClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > maxTextChars {
			cut := maxTextChars
			for cut > 0 && !utf8.RuneStart(t[cut]) {
				cut--
			}
			t = t[:cut]
		}
		truncated[i] = t
	}

	out := make([][]float32, 0, len(truncated))
	for start := 0; start < len(truncated); start += batchSize {
		end := min(start+batchSize, len(truncated))

		vectors, err := c.embedBatch(ctx, truncated[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch starting at %d: %v", ErrEmbeddingFailed, start, err)
		}
		out = append(out, vectors...)
	}

	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(out), len(texts))
	}
	return out, nil
}

// embedBatch sends one embeddings request, retrying rate-limit errors
// with exponential backoff.
func (c *OpenAIClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := baseBackoff << (attempt - 1)
			if wait > maxBackoff {
				wait = maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.Embeddings.New(reqCtx, openai.EmbeddingNewParams{
			Model:      openai.EmbeddingModel(c.model),
			Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			Dimensions: openai.Int(int64(c.dimension)),
		})
		cancel()
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return nil, err
		}

		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
		}

		vectors := make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vector := make([]float32, len(data.Embedding))
			for j, v := range data.Embedding {
				vector[j] = float32(v)
			}
			vectors[i] = vector
		}
		return vectors, nil
	}

	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// isRateLimitError reports whether err is an HTTP 429 from the API.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
