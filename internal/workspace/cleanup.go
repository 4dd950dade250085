package workspace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipharvest/internal/logging"
	"clipharvest/internal/services"
)

// Info contains metadata about a workspace directory.
type Info struct {
	ID      string
	Path    string
	ModTime time.Time
	Size    int64
	Clips   int
	Locked  bool
}

// CleanResult contains the outcome of a cleanup operation.
type CleanResult struct {
	Removed []string
	Skipped []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// List returns every workspace under workDir with its size and clip count.
func List(workDir string) ([]Info, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		ws := New(workDir, entry.Name())
		size, _ := dirSize(ws.Root)
		infos = append(infos, Info{
			ID:      ws.ID,
			Path:    ws.Root,
			ModTime: stat.ModTime(),
			Size:    size,
			Clips:   countClips(ws.TrimmedDir),
			Locked:  ws.Locked(),
		})
	}
	return infos, nil
}

// Remove deletes one workspace. A workspace held by a running unit is refused.
func Remove(workDir, manifestID string) error {
	if err := validateID(manifestID); err != nil {
		return err
	}
	ws := New(workDir, manifestID)
	if _, err := os.Stat(ws.Root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrWorkspace, "workspace", "remove", "no workspace named "+manifestID, nil)
		}
		return services.Wrap(services.ErrWorkspace, "workspace", "remove", ws.Root, err)
	}
	if err := ws.Lock(); err != nil {
		return err
	}
	defer func() { _ = ws.Release() }()
	if err := os.RemoveAll(ws.Root); err != nil {
		return services.Wrap(services.ErrWorkspace, "workspace", "remove", ws.Root, err)
	}
	return nil
}

// CleanStale removes workspaces not modified within maxAge. Locked
// workspaces are skipped.
func CleanStale(ctx context.Context, workDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return result
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: workDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(workDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := Remove(workDir, entry.Name()); err != nil {
			if New(workDir, entry.Name()).Locked() {
				result.Skipped = append(result.Skipped, dirPath)
				logger.Info("skipped locked workspace",
					logging.String("path", dirPath),
					logging.String(logging.FieldEventType, "workspace_cleanup_skipped"),
				)
				continue
			}
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logger.Warn("failed to remove stale workspace",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale workspace",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}
	return result
}

func countClips(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".wav") {
			count++
		}
	}
	return count
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
