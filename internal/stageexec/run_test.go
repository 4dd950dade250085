package stageexec_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"clipharvest/internal/logging"
	"clipharvest/internal/services"
	"clipharvest/internal/stage"
	"clipharvest/internal/stageexec"
	"clipharvest/internal/testsupport"
)

func jsonLogger(t *testing.T) (string, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stage.log")
	return path, func() string { return strings.Join(testsupport.ReadLines(t, path), "\n") }
}

func TestRunLogsStartAndCompletion(t *testing.T) {
	path, read := jsonLogger(t)
	logger, closer, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	ctx := services.WithIdentifier(context.Background(), "abc123")

	var sawStage string
	res := stageexec.Run(ctx, stageexec.Options{
		Logger:    logger,
		StageName: stage.Transcode,
		Execute: func(ctx context.Context) stage.Result {
			sawStage, _ = services.StageFromContext(ctx)
			return stage.Ok(stage.Transcode, "/w/transcoded/abc123.wav")
		},
	})
	_ = closer.Close()

	if !res.OK() {
		t.Fatalf("expected ok result, got %v", res.Err)
	}
	if sawStage != stage.Transcode {
		t.Fatalf("expected stage in context, got %q", sawStage)
	}
	content := read()
	for _, fragment := range []string{`"event_type":"stage_start"`, `"event_type":"stage_complete"`, `"identifier":"abc123"`, `"stage":"transcode"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %s in log: %s", fragment, content)
		}
	}
}

func TestRunLogsFailure(t *testing.T) {
	path, read := jsonLogger(t)
	logger, closer, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	res := stageexec.Run(context.Background(), stageexec.Options{
		Logger:    logger,
		StageName: stage.Fetch,
		Execute: func(context.Context) stage.Result {
			return stage.Failed(stage.Fetch, services.Wrap(services.ErrFetch, "fetch", "retrieve", "abc123", errors.New("video unavailable")))
		},
	})
	_ = closer.Close()

	if res.OK() || !errors.Is(res.Err, services.ErrFetch) {
		t.Fatalf("expected fetch failure, got %+v", res)
	}
	content := read()
	for _, fragment := range []string{`"event_type":"stage_failure"`, `"error_kind":"fetch failure"`, "video unavailable"} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %s in log: %s", fragment, content)
		}
	}
}

func TestRunRecoversPanic(t *testing.T) {
	res := stageexec.Run(context.Background(), stageexec.Options{
		Logger:    logging.NewNop(),
		StageName: stage.Trim,
		Execute:   func(context.Context) stage.Result { panic("boom") },
	})
	if res.OK() || res.Stage != stage.Trim {
		t.Fatalf("expected failed trim result, got %+v", res)
	}
	if !errors.Is(res.Err, services.ErrPanic) {
		t.Fatalf("expected panic marker, got %v", res.Err)
	}
}

func TestRunWithoutExecute(t *testing.T) {
	res := stageexec.Run(context.Background(), stageexec.Options{StageName: stage.Trim})
	if res.OK() {
		t.Fatal("expected failure without handler")
	}
}
