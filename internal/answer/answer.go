// Package answer turns retrieved passages into a grounded natural-language
// answer with cited sources.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// ErrGeneration is returned when the completion API fails. It is
// distinct from the no-results path, which is a successful response.
var ErrGeneration = errors.New("answer generation failed")

// NoResultsAnswer is returned verbatim when nothing clears the score
// threshold; no completion call is made in that case.
const NoResultsAnswer = "I couldn't find any relevant information to answer your question."

// defaultScoreThreshold gates which retrieved passages are considered
// relevant enough to ground an answer.
const defaultScoreThreshold = 0.35

const systemPrompt = `You are a document assistant. Answer the question using only the numbered context passages provided. Cite passages as [Source N] where they support your answer. If the passages do not contain enough information to answer, say so plainly; never answer from outside the provided context.`

// Completer produces a chat completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Response is the result of one question.
type Response struct {
	Question string             `json:"question"`
	Answer   string             `json:"answer"`
	Sources  []retrieval.Result `json:"sources"`
}

// Synthesizer answers questions from a session's indexed documents.
type Synthesizer struct {
	engine    *retrieval.Engine
	completer Completer
	logger    *logging.Logger
}

// NewSynthesizer creates an answer synthesizer.
func NewSynthesizer(engine *retrieval.Engine, completer Completer, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{engine: engine, completer: completer, logger: logger.Named("answer")}
}

// Answer retrieves passages for the question and synthesizes a grounded
// answer. Sources are returned in retrieval order, exactly as presented
// to the model.
func (s *Synthesizer) Answer(ctx context.Context, question, sessionID string, topK int) (*Response, error) {
	results, err := s.engine.Search(ctx, question, sessionID, topK, defaultScoreThreshold)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		s.logger.Debug(ctx, "no passages cleared threshold")
		return &Response{
			Question: question,
			Answer:   NoResultsAnswer,
			Sources:  []retrieval.Result{},
		}, nil
	}

	text, err := s.completer.Complete(ctx, systemPrompt, userPrompt(question, results))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	s.logger.Debug(ctx, "answer generated", zap.Int("sources", len(results)))
	return &Response{
		Question: question,
		Answer:   text,
		Sources:  results,
	}, nil
}

// userPrompt lays out the retrieved passages as numbered context blocks
// followed by the question.
func userPrompt(question string, results []retrieval.Result) string {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for n, r := range results {
		fmt.Fprintf(&b, "[Source %d: %s]\n%s\n\n", n+1, r.Filename, r.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
