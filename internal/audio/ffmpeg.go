package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clipharvest/internal/config"
	"clipharvest/internal/services"
)

var errEmptyOutput = errors.New("ffmpeg produced an empty file")

// baseArgs precede every ffmpeg invocation.
var baseArgs = []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y"}

// tool holds the ffmpeg settings shared by the transcoder and the trimmer.
type tool struct {
	binary     string
	sampleRate int
	channels   int
	extra      []string
	timeout    time.Duration
	exec       services.Executor
}

func newTool(cfg *config.Config, exec services.Executor) (tool, error) {
	extra, err := cfg.FFmpegExtraArgs()
	if err != nil {
		return tool{}, services.Wrap(services.ErrConfiguration, "ffmpeg", "init", "invalid extra args", err)
	}
	binary := strings.TrimSpace(cfg.FFmpeg.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if exec == nil {
		exec = services.CommandExecutor{}
	}
	t := tool{
		binary:     binary,
		sampleRate: cfg.FFmpeg.SampleRate,
		channels:   cfg.FFmpeg.Channels,
		extra:      extra,
		exec:       exec,
	}
	if cfg.FFmpeg.TimeoutSeconds > 0 {
		t.timeout = time.Duration(cfg.FFmpeg.TimeoutSeconds) * time.Second
	}
	return t, nil
}

// outputArgs are the audio encoding options appended before the output path.
func (t tool) outputArgs() []string {
	args := []string{"-vn"}
	if t.channels > 0 {
		args = append(args, "-ac", strconv.Itoa(t.channels))
	}
	if t.sampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(t.sampleRate))
	}
	args = append(args, t.extra...)
	return append(args, "-f", "wav")
}

// render runs ffmpeg with args followed by a temporary output path and
// renames the result to dest. check, when set, inspects the temporary file
// before it is promoted.
func (t tool) render(ctx context.Context, args []string, dest string, check func(context.Context, string) error) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(dest), ".wav")+".*.partial.wav")
	if err != nil {
		return err
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	promoted := false
	defer func() {
		if !promoted {
			_ = os.Remove(tmp)
		}
	}()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	full := append(append([]string(nil), args...), tmp)
	if err := t.exec.Run(ctx, t.binary, full); err != nil {
		return err
	}
	info, err := os.Stat(tmp)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errEmptyOutput
	}
	if check != nil {
		if err := check(ctx, tmp); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return err
	}
	promoted = true
	return nil
}

// OutputName returns <stem(src)>.wav.
func OutputName(src string) string {
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".wav"
}
