package services

import "context"

type contextKey string

const (
	manifestKey   contextKey = "manifest"
	identifierKey contextKey = "identifier"
	stageKey      contextKey = "stage"
	requestIDKey  contextKey = "request_id"
)

// WithManifest annotates context with the manifest (unit) identifier.
func WithManifest(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, manifestKey, id)
}

// ManifestFromContext returns the manifest identifier if present.
func ManifestFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(manifestKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithIdentifier annotates context with the manifest row identifier.
func WithIdentifier(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, identifierKey, id)
}

// IdentifierFromContext returns the row identifier if present.
func IdentifierFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(identifierKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
