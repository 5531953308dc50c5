package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestNew_ValidConfig(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger.Underlying())
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")
	ctx = ContextWithDocumentID(ctx, "doc-1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "sess-1", SessionIDFromContext(ctx))
	assert.Equal(t, "doc-1", DocumentIDFromContext(ctx))
	assert.Len(t, ContextFields(ctx), 3)
}

func TestLogger_CarriesContextFields(t *testing.T) {
	logger := NewTestLogger()

	ctx := ContextWithDocumentID(context.Background(), "doc-42")
	logger.Info(ctx, "pipeline stage done")

	entries := logger.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline stage done", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "doc-42", fields["document.id"])

	logger.AssertLogged(t, zapcore.InfoLevel, "stage done")
}
