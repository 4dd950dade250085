package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"clipharvest/internal/config"
	"clipharvest/internal/services"
	"clipharvest/internal/stage"
)

// Transcoder converts fetched media into WAV audio.
type Transcoder struct {
	tool
}

// NewTranscoder builds a Transcoder from the ffmpeg section of cfg. exec may
// be nil to use services.CommandExecutor.
func NewTranscoder(cfg *config.Config, exec services.Executor) (*Transcoder, error) {
	t, err := newTool(cfg, exec)
	if err != nil {
		return nil, err
	}
	return &Transcoder{tool: t}, nil
}

// Args returns the ffmpeg arguments for src, without the output path.
func (t *Transcoder) Args(src string) []string {
	args := append([]string(nil), baseArgs...)
	args = append(args, "-i", src)
	return append(args, t.outputArgs()...)
}

// Transcode writes destDir/<stem(src)>.wav. An existing, non-empty output is
// reused. Failures wrap services.ErrTranscode.
func (t *Transcoder) Transcode(ctx context.Context, src, destDir string) stage.Result {
	dest := filepath.Join(destDir, OutputName(src))
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		return stage.Ok(stage.Transcode, dest)
	}
	if _, err := os.Stat(src); err != nil {
		return stage.Failed(stage.Transcode, services.Wrap(services.ErrTranscode, stage.Transcode, "open source", src, err))
	}
	if err := t.render(ctx, t.Args(src), dest, nil); err != nil {
		return stage.Failed(stage.Transcode, services.Wrap(services.ErrTranscode, stage.Transcode, "ffmpeg", filepath.Base(src), err))
	}
	return stage.Ok(stage.Transcode, dest)
}

// HealthCheck reports whether the ffmpeg binary resolves on PATH.
func (t *Transcoder) HealthCheck(context.Context) stage.Health {
	return t.health(stage.Transcode)
}

func (t tool) health(name string) stage.Health {
	if _, err := exec.LookPath(t.binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", t.binary))
	}
	return stage.Healthy(name)
}
