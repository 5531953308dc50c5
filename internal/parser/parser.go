// Package parser extracts plain text from uploaded document bytes.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable indicates the file content could not be parsed.
// The ingestion pipeline records it as the document's failure reason;
// it is never surfaced to the uploader directly.
var ErrUnreadable = errors.New("unreadable document content")

// ErrUnsupportedType indicates a content type outside pdf/txt/markdown.
var ErrUnsupportedType = errors.New("unsupported content type")

// kindFor maps accepted content types to a parse strategy. An
// octet-stream upload is resolved by file extension.
var kindFor = map[string]string{
	"application/pdf":          "pdf",
	"text/plain":               "text",
	"text/markdown":            "text",
	"application/octet-stream": "auto",
}

// Supported reports whether the content type (or, for generic types, the
// filename extension) identifies a parseable document.
func Supported(contentType, filename string) bool {
	kind, ok := kindFor[normalize(contentType)]
	if !ok {
		return hasSupportedExtension(filename)
	}
	if kind == "auto" {
		return hasSupportedExtension(filename)
	}
	return true
}

// Parse extracts plain text from content. Unreadable input returns an
// error wrapping ErrUnreadable with a human-readable reason.
func Parse(content []byte, contentType, filename string) (string, error) {
	kind, ok := kindFor[normalize(contentType)]
	if !ok || kind == "auto" {
		if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
			kind = "pdf"
		} else if hasSupportedExtension(filename) {
			kind = "text"
		} else {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
		}
	}

	if kind == "pdf" {
		return parsePDF(content)
	}
	return parseText(content), nil
}

// parsePDF extracts the text of every page, joined by blank lines.
func parsePDF(content []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs; a corrupt upload
	// must terminate as a recorded parse failure, not a crash.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: malformed PDF: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: extracting page %d: %v", ErrUnreadable, i, err)
		}
		if strings.TrimSpace(pageText) != "" {
			pages = append(pages, pageText)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}

// parseText decodes text content as UTF-8, falling back to Latin-1 for
// legacy encodings.
func parseText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	// Latin-1: every byte maps directly to the same code point.
	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return string(runes)
}

func hasSupportedExtension(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".txt") ||
		strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".markdown") ||
		strings.HasSuffix(lower, ".pdf")
}

func normalize(contentType string) string {
	// Strip parameters such as "; charset=utf-8".
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
