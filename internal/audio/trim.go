package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"clipharvest/internal/config"
	"clipharvest/internal/media/ffprobe"
	"clipharvest/internal/services"
	"clipharvest/internal/stage"
)

// Trimmer cuts a [start, end) window out of a WAV file.
type Trimmer struct {
	tool
	prober    ffprobe.Prober
	verify    bool
	tolerance float64
}

// TrimmerOption configures a Trimmer.
type TrimmerOption func(*Trimmer)

// WithProber overrides the ffprobe implementation used for duration checks.
func WithProber(p ffprobe.Prober) TrimmerOption {
	return func(t *Trimmer) {
		if p != nil {
			t.prober = p
		}
	}
}

// NewTrimmer builds a Trimmer from cfg. Duration verification follows the
// validation section.
func NewTrimmer(cfg *config.Config, exec services.Executor, opts ...TrimmerOption) (*Trimmer, error) {
	t, err := newTool(cfg, exec)
	if err != nil {
		return nil, err
	}
	trimmer := &Trimmer{
		tool:      t,
		prober:    ffprobe.Command{Binary: cfg.FFmpeg.FFprobeBinary},
		verify:    cfg.Validation.VerifyDuration,
		tolerance: cfg.Validation.DurationToleranceSeconds,
	}
	for _, opt := range opts {
		opt(trimmer)
	}
	return trimmer, nil
}

// Args returns the ffmpeg arguments for the window, without the output path.
func (t *Trimmer) Args(src string, start, end int) []string {
	args := append([]string(nil), baseArgs...)
	args = append(args,
		"-ss", strconv.Itoa(start),
		"-i", src,
		"-t", strconv.Itoa(end-start),
	)
	return append(args, t.outputArgs()...)
}

// Trim writes destDir/<stem(src)>.wav containing [start, end) of src. An
// empty or inverted window fails without running ffmpeg. Failures wrap
// services.ErrTrim.
func (t *Trimmer) Trim(ctx context.Context, src string, start, end int, destDir string) stage.Result {
	if end <= start {
		return stage.Failed(stage.Trim, services.Wrap(services.ErrTrim, stage.Trim, "window", fmt.Sprintf("end %d must be greater than start %d", end, start), nil))
	}
	if start < 0 {
		return stage.Failed(stage.Trim, services.Wrap(services.ErrTrim, stage.Trim, "window", fmt.Sprintf("start %d is negative", start), nil))
	}

	dest := filepath.Join(destDir, OutputName(src))
	var check func(context.Context, string) error
	if t.verify {
		want := float64(end - start)
		check = func(ctx context.Context, path string) error {
			result, err := t.prober.Probe(ctx, path)
			if err != nil {
				return err
			}
			if err := result.CheckDuration(want, t.tolerance); err != nil {
				return services.Wrap(services.ErrValidation, stage.Trim, "verify duration", "", err)
			}
			return nil
		}
	}
	if err := t.render(ctx, t.Args(src, start, end), dest, check); err != nil {
		return stage.Failed(stage.Trim, services.Wrap(services.ErrTrim, stage.Trim, "ffmpeg", filepath.Base(src), err))
	}
	return stage.Ok(stage.Trim, dest)
}

// HealthCheck reports whether ffmpeg (and ffprobe when verification is on)
// resolve on PATH.
func (t *Trimmer) HealthCheck(ctx context.Context) stage.Health {
	health := t.health(stage.Trim)
	if !health.Ready || !t.verify {
		return health
	}
	if cmd, ok := t.prober.(ffprobe.Command); ok {
		probe := tool{binary: cmd.Binary}
		if probe.binary == "" {
			probe.binary = "ffprobe"
		}
		return probe.health(stage.Trim)
	}
	return health
}
