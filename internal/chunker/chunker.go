// Package chunker splits document text into overlapping passages.
//
// Splitting prefers paragraph boundaries, falls back to sentence
// boundaries for oversized paragraphs, and hard-cuts pathologically long
// unbroken runs. Consecutive chunks share a tail of boundary content so
// that facts spanning a split point remain retrievable from at least one
// chunk. The output is deterministic for a given input and settings.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxSize is the target upper bound for a chunk, in bytes.
	DefaultMaxSize = 2000
	// DefaultOverlap is the number of boundary bytes carried into the
	// next chunk.
	DefaultOverlap = 200
	// minTailSize is the smallest trailing fragment kept as its own
	// chunk; anything shorter is dropped as noise.
	minTailSize = 50
)

var (
	paragraphRe = regexp.MustCompile(`\n\s*\n+`)
	sentenceRe  = regexp.MustCompile(`([.!?])\s+`)
)

// Chunk is one passage of a document with its order-preserving index.
type Chunk struct {
	Index int
	Text  string
}

// Chunker splits text into overlapping chunks.
type Chunker struct {
	maxSize int
	overlap int
}

// New creates a Chunker. Non-positive arguments fall back to defaults;
// overlap is clamped below maxSize.
func New(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxSize {
		overlap = maxSize / 4
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// Chunk splits text into ordered chunks with contiguous indices from 0.
// Empty or whitespace-only input yields zero chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var pieces []string
	var current strings.Builder

	flush := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			pieces = append(pieces, trimmed)
		}
		current.Reset()
	}

	for _, para := range splitParagraphs(text) {
		if len(para) > c.maxSize {
			// Oversized paragraph: flush what we have, then split it
			// at sentence boundaries.
			flush()
			pieces = append(pieces, c.splitOversized(para)...)
			continue
		}

		if current.Len() > 0 && current.Len()+2+len(para) > c.maxSize {
			flush()
			// Carry the tail of the previous chunk for continuity.
			if tail := c.tailOf(pieces); tail != "" {
				current.WriteString(tail)
				current.WriteString("\n\n")
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}

	// The final fragment is kept only when it carries enough content to
	// be worth retrieving on its own.
	tail := strings.TrimSpace(current.String())
	if len(tail) >= minTailSize || (len(pieces) == 0 && tail != "") {
		pieces = append(pieces, tail)
	}

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Index: i, Text: p}
	}
	return chunks
}

// splitOversized splits a paragraph that exceeds maxSize at sentence
// boundaries, hard-cutting any single sentence that is still too long.
func (c *Chunker) splitOversized(para string) []string {
	var out []string
	var current strings.Builder

	flush := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			out = append(out, trimmed)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(para) {
		if len(sentence) > c.maxSize {
			flush()
			out = append(out, hardCut(sentence, c.maxSize, c.overlap)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > c.maxSize {
			flush()
			if tail := c.tailOf(out); tail != "" {
				current.WriteString(tail)
				current.WriteString(" ")
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()

	return out
}

// tailOf returns the overlap tail of the most recent piece, aligned to a
// rune boundary and trimmed to start at a word boundary where possible.
func (c *Chunker) tailOf(pieces []string) string {
	if c.overlap == 0 || len(pieces) == 0 {
		return ""
	}
	prev := pieces[len(pieces)-1]
	if len(prev) <= c.overlap {
		return prev
	}
	start := len(prev) - c.overlap
	for start < len(prev) && !utf8.RuneStart(prev[start]) {
		start++
	}
	tail := prev[start:]
	if idx := strings.IndexAny(tail, " \t\n"); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

// hardCut slices an unbroken run into maxSize windows advancing by
// maxSize-overlap, respecting rune boundaries.
func hardCut(text string, maxSize, overlap int) []string {
	step := maxSize - overlap
	if step <= 0 {
		step = maxSize
	}

	var out []string
	for start := 0; start < len(text); {
		end := start + maxSize
		if end >= len(text) {
			out = append(out, text[start:])
			break
		}
		for end > start && !utf8.RuneStart(text[end]) {
			end--
		}
		out = append(out, text[start:end])

		next := start + step
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
	return out
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphRe.Split(text, -1) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// splitSentences splits on sentence-ending punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	marked := sentenceRe.ReplaceAllString(text, "$1\x00")
	var out []string
	for _, s := range strings.Split(marked, "\x00") {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
