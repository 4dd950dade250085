package services_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"clipharvest/internal/services"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCommandExecutorSuccessForwardsLines(t *testing.T) {
	tool := writeScript(t, "echo one\necho two >&2\nexit 0")
	var lines []string
	exec := services.CommandExecutor{OnLine: func(line string) { lines = append(lines, line) }}
	if err := exec.Run(context.Background(), tool, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected two forwarded lines, got %v", lines)
	}
}

func TestCommandExecutorReportsExitStatus(t *testing.T) {
	tool := writeScript(t, "echo 'Invalid data found' >&2\nexit 3")
	err := services.CommandExecutor{}.Run(context.Background(), tool, []string{"-i", "x"})
	var cmdErr *services.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", cmdErr.ExitCode)
	}
	if !strings.Contains(cmdErr.Error(), "Invalid data found") {
		t.Fatalf("expected output tail in error, got %q", cmdErr.Error())
	}
}

func TestCommandExecutorMissingBinary(t *testing.T) {
	err := services.CommandExecutor{}.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	var cmdErr *services.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.ExitCode != -1 {
		t.Fatalf("expected launch failure code -1, got %d", cmdErr.ExitCode)
	}
}
