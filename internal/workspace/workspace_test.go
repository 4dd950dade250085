package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipharvest/internal/logging"
	"clipharvest/internal/services"
	"clipharvest/internal/workspace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestPrepareCreatesLayout(t *testing.T) {
	workDir := t.TempDir()
	ws, err := workspace.Prepare(workDir, "eval", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ws.Release()

	for _, dir := range ws.StageDirs() {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if ws.TrimmedPath("abc123") != filepath.Join(workDir, "eval", "trimmed", "abc123.wav") {
		t.Fatalf("unexpected trimmed path %s", ws.TrimmedPath("abc123"))
	}
	if ws.IndexPath != filepath.Join(workDir, "eval", "index.csv") {
		t.Fatalf("unexpected index path %s", ws.IndexPath)
	}
}

func TestPreparePreservesContentsWithoutReset(t *testing.T) {
	workDir := t.TempDir()
	ws, err := workspace.Prepare(workDir, "eval", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	writeFile(t, ws.TrimmedPath("abc123"), "clip")
	writeFile(t, ws.IndexPath, "line\n")
	_ = ws.Release()

	ws, err = workspace.Prepare(workDir, "eval", false)
	if err != nil {
		t.Fatalf("Prepare again: %v", err)
	}
	defer ws.Release()
	if _, err := os.Stat(ws.TrimmedPath("abc123")); err != nil {
		t.Fatalf("expected trimmed clip to survive: %v", err)
	}
	content, _ := os.ReadFile(ws.IndexPath)
	if string(content) != "line\n" {
		t.Fatalf("expected index preserved, got %q", content)
	}
}

func TestPrepareResetClearsStageDirsAndIndex(t *testing.T) {
	workDir := t.TempDir()
	ws, err := workspace.Prepare(workDir, "eval", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	writeFile(t, filepath.Join(ws.RawDir, "abc123.mp4"), "raw")
	writeFile(t, ws.TrimmedPath("abc123"), "clip")
	writeFile(t, ws.IndexPath, "line\n")
	_ = ws.Release()

	ws, err = workspace.Prepare(workDir, "eval", true)
	if err != nil {
		t.Fatalf("Prepare reset: %v", err)
	}
	defer ws.Release()
	for _, dir := range ws.StageDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read %s: %v", dir, err)
		}
		if len(entries) != 0 {
			t.Fatalf("expected %s empty after reset, got %d entries", dir, len(entries))
		}
	}
	info, err := os.Stat(ws.IndexPath)
	if err != nil || info.Size() != 0 {
		t.Fatalf("expected truncated index, err=%v", err)
	}
}

func TestPrepareRefusesLockedWorkspace(t *testing.T) {
	workDir := t.TempDir()
	first, err := workspace.Prepare(workDir, "eval", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer first.Release()

	if _, err := workspace.Prepare(workDir, "eval", false); !errors.Is(err, services.ErrWorkspace) {
		t.Fatalf("expected ErrWorkspace for locked workspace, got %v", err)
	}
	if !first.Locked() {
		t.Fatal("expected workspace to report locked")
	}
}

func TestPrepareFailsWhenRootIsFile(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "eval"), "not a dir")
	if _, err := workspace.Prepare(workDir, "eval", false); !errors.Is(err, services.ErrWorkspace) {
		t.Fatalf("expected ErrWorkspace, got %v", err)
	}
}

func TestPrepareRejectsInvalidID(t *testing.T) {
	for _, id := range []string{"", "..", "a/b", " eval"} {
		if _, err := workspace.Prepare(t.TempDir(), id, false); !errors.Is(err, services.ErrWorkspace) {
			t.Fatalf("expected ErrWorkspace for %q, got %v", id, err)
		}
	}
}

func TestManifestID(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/data/eval_segments.csv", "eval_segments"},
		{"balanced train.csv", "balanced_train"},
		{"/data/.csv", "manifest"},
		{"rows.v2.csv", "rows.v2"},
	}
	for _, tt := range tests {
		if got := workspace.ManifestID(tt.path); got != tt.want {
			t.Fatalf("ManifestID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestListReportsSizeAndClips(t *testing.T) {
	workDir := t.TempDir()
	ws, err := workspace.Prepare(workDir, "eval", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	writeFile(t, ws.TrimmedPath("a"), "12345")
	writeFile(t, ws.TrimmedPath("b"), "123")
	_ = ws.Release()
	writeFile(t, filepath.Join(workDir, "stray.txt"), "ignored")

	infos, err := workspace.List(workDir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 workspace, got %d", len(infos))
	}
	if infos[0].ID != "eval" || infos[0].Clips != 2 || infos[0].Size != 8 || infos[0].Locked {
		t.Fatalf("unexpected info: %+v", infos[0])
	}
}

func TestListMissingDir(t *testing.T) {
	infos, err := workspace.List(filepath.Join(t.TempDir(), "missing"))
	if err != nil || infos != nil {
		t.Fatalf("expected nil result, got %v %v", infos, err)
	}
}

func TestRemove(t *testing.T) {
	workDir := t.TempDir()
	ws, err := workspace.Prepare(workDir, "eval", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := workspace.Remove(workDir, "eval"); !errors.Is(err, services.ErrWorkspace) {
		t.Fatalf("expected locked workspace to be refused, got %v", err)
	}
	_ = ws.Release()
	if err := workspace.Remove(workDir, "eval"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(ws.Root); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
	if err := workspace.Remove(workDir, "eval"); !errors.Is(err, services.ErrWorkspace) {
		t.Fatalf("expected missing workspace error, got %v", err)
	}
}

func TestCleanStaleRemovesOldWorkspaces(t *testing.T) {
	workDir := t.TempDir()
	for _, id := range []string{"old", "recent"} {
		ws, err := workspace.Prepare(workDir, id, false)
		if err != nil {
			t.Fatalf("Prepare %s: %v", id, err)
		}
		_ = ws.Release()
	}
	oldRoot := filepath.Join(workDir, "old")
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldRoot, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := workspace.CleanStale(context.Background(), workDir, time.Hour, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != oldRoot {
		t.Fatalf("expected only old workspace removed, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(workDir, "recent")); err != nil {
		t.Fatalf("recent workspace should remain: %v", err)
	}
}

func TestCleanStaleSkipsLockedWorkspace(t *testing.T) {
	workDir := t.TempDir()
	ws, err := workspace.Prepare(workDir, "busy", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ws.Release()
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(ws.Root, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := workspace.CleanStale(context.Background(), workDir, time.Hour, nil)
	if len(result.Removed) != 0 || len(result.Skipped) != 1 {
		t.Fatalf("expected locked workspace skipped, got %+v", result)
	}
}
