package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"clipharvest/internal/services"
	"clipharvest/internal/stage"
)

const highestQualitySelector = "best[acodec!=none][vcodec!=none]"

// YTDLP retrieves assets with the yt-dlp command line tool.
type YTDLP struct {
	Binary    string
	ExtraArgs []string
	Executor  services.Executor
}

// Args returns the yt-dlp argument list for one retrieval.
func (y *YTDLP) Args(reference string, quality Quality, scratchDir string) []string {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-part",
		"--no-warnings",
		"-o", filepath.Join(scratchDir, "media.%(ext)s"),
	}
	if quality == QualityHighest {
		args = append(args, "-f", highestQualitySelector)
	}
	args = append(args, y.ExtraArgs...)
	return append(args, "--", reference)
}

// Retrieve runs yt-dlp and returns the single file it wrote to scratchDir.
func (y *YTDLP) Retrieve(ctx context.Context, reference string, quality Quality, scratchDir string) (string, error) {
	binary := strings.TrimSpace(y.Binary)
	if binary == "" {
		binary = "yt-dlp"
	}
	executor := y.Executor
	if executor == nil {
		executor = services.CommandExecutor{}
	}
	if err := executor.Run(ctx, binary, y.Args(reference, quality, scratchDir)); err != nil {
		return "", err
	}
	return largestFile(scratchDir)
}

// HealthCheck reports whether the yt-dlp binary resolves on PATH.
func (y *YTDLP) HealthCheck(context.Context) stage.Health {
	binary := strings.TrimSpace(y.Binary)
	if binary == "" {
		binary = "yt-dlp"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(stage.Fetch, fmt.Sprintf("binary %q not found", binary))
	}
	return stage.Healthy(stage.Fetch)
}

func largestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var best string
	var bestSize int64 = -1
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, entry.Name())
			bestSize = info.Size()
		}
	}
	if best == "" || bestSize == 0 {
		return "", errors.New("retrieval produced no output")
	}
	return best, nil
}
