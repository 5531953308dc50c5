package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		want        bool
	}{
		{"pdf", "application/pdf", "report.pdf", true},
		{"plain text", "text/plain", "notes.txt", true},
		{"markdown", "text/markdown", "readme.md", true},
		{"charset parameter", "text/plain; charset=utf-8", "notes.txt", true},
		{"octet-stream with txt extension", "application/octet-stream", "notes.txt", true},
		{"octet-stream with pdf extension", "application/octet-stream", "report.pdf", true},
		{"octet-stream unknown extension", "application/octet-stream", "image.png", false},
		{"unknown type with md extension", "", "readme.markdown", true},
		{"image", "image/png", "cat.png", false},
		{"json", "application/json", "data.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Supported(tt.contentType, tt.filename))
		})
	}
}

func TestParse_PlainText(t *testing.T) {
	text, err := Parse([]byte("hello world\n"), "text/plain", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", text)
}

func TestParse_Markdown(t *testing.T) {
	content := []byte("# Title\n\nSome **bold** text.")
	text, err := Parse(content, "text/markdown", "readme.md")
	require.NoError(t, err)
	assert.Equal(t, string(content), text)
}

func TestParse_Latin1Fallback(t *testing.T) {
	// "café" in Latin-1: é is a single 0xE9 byte, invalid as UTF-8.
	content := []byte{'c', 'a', 'f', 0xE9}
	text, err := Parse(content, "text/plain", "menu.txt")
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestParse_OctetStreamByExtension(t *testing.T) {
	text, err := Parse([]byte("plain content"), "application/octet-stream", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain content", text)
}

func TestParse_UnsupportedType(t *testing.T) {
	_, err := Parse([]byte("x"), "application/json", "data.json")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestParse_CorruptPDF(t *testing.T) {
	_, err := Parse([]byte("this is definitely not a pdf"), "application/pdf", "report.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestParse_TruncatedPDF(t *testing.T) {
	// A valid header followed by garbage must fail, not panic.
	content := append([]byte("%PDF-1.4\n"), []byte("garbage body without xref")...)
	_, err := Parse(content, "application/pdf", "broken.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadable)
}
