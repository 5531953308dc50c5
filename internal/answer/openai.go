package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

const (
	completionMaxRetries  = 3
	completionBaseBackoff = 2 * time.Second
	completionMaxBackoff  = 32 * time.Second
)

// ErrAPIKeyNotSet is returned when no OpenAI API key is configured.
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// OpenAICompleter is a Completer backed by the OpenAI chat completions API.
type OpenAICompleter struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter creates a completion client from config. Extra request
// options are appended after the API key, so they can override defaults.
func NewOpenAICompleter(cfg config.OpenAIConfig, opts ...option.RequestOption) (*OpenAICompleter, error) {
	if !cfg.APIKey.IsSet() {
		return nil, ErrAPIKeyNotSet
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey.Value())}, opts...)
	return &OpenAICompleter{
		client:      openai.NewClient(clientOpts...),
		model:       cfg.ChatModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.RequestTimeout.Duration(),
	}, nil
}

// Complete sends one chat completion request, retrying rate-limit
// errors with exponential backoff.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= completionMaxRetries; attempt++ {
		if attempt > 0 {
			wait := completionBaseBackoff << (attempt - 1)
			if wait > completionMaxBackoff {
				wait = completionMaxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		completion, err := c.client.Chat.Completions.New(reqCtx, params)
		cancel()
		if err != nil {
			lastErr = err
			if isRateLimited(err) {
				continue
			}
			return "", err
		}

		if len(completion.Choices) == 0 {
			return "", errors.New("completion returned no choices")
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", completionMaxRetries, lastErr)
}

// isRateLimited reports whether err is an HTTP 429 from the API.
func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
