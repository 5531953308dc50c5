package logging

import (
	"context"

	"go.uber.org/zap"
)

type requestCtxKey struct{}
type sessionCtxKey struct{}
type documentCtxKey struct{}

// ContextWithRequestID stores an HTTP request id in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request id, or "" if unset.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// ContextWithSessionID stores the client session id in the context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, id)
}

// SessionIDFromContext returns the session id, or "" if unset.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey{}).(string)
	return id
}

// ContextWithDocumentID stores the document id a pipeline run is working on.
func ContextWithDocumentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, documentCtxKey{}, id)
}

// DocumentIDFromContext returns the document id, or "" if unset.
func DocumentIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(documentCtxKey{}).(string)
	return id
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, zap.String("session.id", sessionID))
	}
	if documentID := DocumentIDFromContext(ctx); documentID != "" {
		fields = append(fields, zap.String("document.id", documentID))
	}

	return fields
}
