package services

import (
	"context"
	"testing"
)

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithManifest(ctx, "eval_segments")
	ctx = WithIdentifier(ctx, "abc123")
	ctx = WithStage(ctx, "fetch")
	ctx = WithRequestID(ctx, "run-1")

	if v, ok := ManifestFromContext(ctx); !ok || v != "eval_segments" {
		t.Fatalf("manifest: got %q %v", v, ok)
	}
	if v, ok := IdentifierFromContext(ctx); !ok || v != "abc123" {
		t.Fatalf("identifier: got %q %v", v, ok)
	}
	if v, ok := StageFromContext(ctx); !ok || v != "fetch" {
		t.Fatalf("stage: got %q %v", v, ok)
	}
	if v, ok := RequestIDFromContext(ctx); !ok || v != "run-1" {
		t.Fatalf("request id: got %q %v", v, ok)
	}
}

func TestContextHelpersIgnoreEmpty(t *testing.T) {
	ctx := context.Background()
	if WithStage(ctx, "") != ctx || WithManifest(ctx, "") != ctx {
		t.Fatal("expected empty values to return the original context")
	}
	if _, ok := StageFromContext(ctx); ok {
		t.Fatal("expected no stage on bare context")
	}
}
