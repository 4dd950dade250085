package audio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"clipharvest/internal/audio"
	"clipharvest/internal/config"
	"clipharvest/internal/media/ffprobe"
	"clipharvest/internal/services"
	"clipharvest/internal/testsupport"
)

func setup(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, string, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	src := filepath.Join(base, "raw", "abc123.mp4")
	testsupport.WriteFile(t, src, 64)
	return cfg, src, filepath.Join(base, "out")
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, entry := range entries {
		if entry.Name() != "abc123.wav" {
			t.Fatalf("unexpected leftover file %s", entry.Name())
		}
	}
}

func TestTranscodeWritesWav(t *testing.T) {
	cfg, src, dest := setup(t)
	cfg.FFmpeg.SampleRate = 16000
	cfg.FFmpeg.Channels = 1
	exec := &testsupport.FakeExecutor{}
	tr, err := audio.NewTranscoder(cfg, exec)
	if err != nil {
		t.Fatalf("NewTranscoder: %v", err)
	}

	res := tr.Transcode(context.Background(), src, dest)
	if !res.OK() {
		t.Fatalf("expected ok, got %v", res.Err)
	}
	if res.Path != filepath.Join(dest, "abc123.wav") {
		t.Fatalf("unexpected output path %s", res.Path)
	}
	calls := exec.CallsFor("ffmpeg")
	if len(calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(calls))
	}
	args := calls[0].Args
	want := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y", "-i", src, "-vn", "-ac", "1", "-ar", "16000", "-f", "wav"}
	if !reflect.DeepEqual(args[:len(want)], want) {
		t.Fatalf("unexpected args %v", args)
	}
	assertNoPartials(t, dest)
}

func TestTranscodeReusesExistingOutput(t *testing.T) {
	cfg, src, dest := setup(t)
	testsupport.WriteFile(t, filepath.Join(dest, "abc123.wav"), 10)
	exec := &testsupport.FakeExecutor{}
	tr, _ := audio.NewTranscoder(cfg, exec)

	res := tr.Transcode(context.Background(), src, dest)
	if !res.OK() {
		t.Fatalf("expected ok, got %v", res.Err)
	}
	if len(exec.Calls()) != 0 {
		t.Fatalf("expected ffmpeg not to run, got %d calls", len(exec.Calls()))
	}
}

func TestTranscodeFailureRemovesPartial(t *testing.T) {
	cfg, src, dest := setup(t)
	exec := &testsupport.FakeExecutor{Handle: func(string, []string) error {
		return &services.CommandError{Binary: "ffmpeg", ExitCode: 1, Output: []string{"Invalid data found when processing input"}}
	}}
	tr, _ := audio.NewTranscoder(cfg, exec)

	res := tr.Transcode(context.Background(), src, dest)
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, services.ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", res.Err)
	}
	entries, _ := os.ReadDir(dest)
	if len(entries) != 0 {
		t.Fatalf("expected no files after failure, got %d", len(entries))
	}
}

func TestTranscodeMissingSource(t *testing.T) {
	cfg, _, dest := setup(t)
	exec := &testsupport.FakeExecutor{}
	tr, _ := audio.NewTranscoder(cfg, exec)
	res := tr.Transcode(context.Background(), filepath.Join(dest, "missing.mp4"), dest)
	if res.OK() || !errors.Is(res.Err, services.ErrTranscode) {
		t.Fatalf("expected transcode failure, got %+v", res)
	}
	if len(exec.Calls()) != 0 {
		t.Fatal("expected ffmpeg not to run for missing source")
	}
}

func TestTrimWindowArgs(t *testing.T) {
	cfg, src, dest := setup(t)
	exec := &testsupport.FakeExecutor{}
	tr, err := audio.NewTrimmer(cfg, exec)
	if err != nil {
		t.Fatalf("NewTrimmer: %v", err)
	}

	res := tr.Trim(context.Background(), src, 10, 15, dest)
	if !res.OK() {
		t.Fatalf("expected ok, got %v", res.Err)
	}
	if res.Path != filepath.Join(dest, "abc123.wav") {
		t.Fatalf("unexpected output path %s", res.Path)
	}
	args := exec.CallsFor("ffmpeg")[0].Args
	want := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y", "-ss", "10", "-i", src, "-t", "5"}
	if !reflect.DeepEqual(args[:len(want)], want) {
		t.Fatalf("unexpected args %v", args)
	}
	assertNoPartials(t, dest)
}

func TestTrimRejectsInvertedWindowWithoutRunningFFmpeg(t *testing.T) {
	cfg, src, dest := setup(t)
	exec := &testsupport.FakeExecutor{}
	tr, _ := audio.NewTrimmer(cfg, exec)

	for _, window := range [][2]int{{15, 10}, {10, 10}} {
		res := tr.Trim(context.Background(), src, window[0], window[1], dest)
		if res.OK() || !errors.Is(res.Err, services.ErrTrim) {
			t.Fatalf("expected trim failure for %v, got %+v", window, res)
		}
	}
	if len(exec.Calls()) != 0 {
		t.Fatalf("expected no ffmpeg calls, got %d", len(exec.Calls()))
	}
}

func TestTrimFailure(t *testing.T) {
	cfg, src, dest := setup(t)
	exec := &testsupport.FakeExecutor{Handle: func(string, []string) error {
		return &services.CommandError{Binary: "ffmpeg", ExitCode: 1}
	}}
	tr, _ := audio.NewTrimmer(cfg, exec)
	res := tr.Trim(context.Background(), src, 0, 5, dest)
	if res.OK() || !errors.Is(res.Err, services.ErrTrim) {
		t.Fatalf("expected trim failure, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dest, "abc123.wav")); !os.IsNotExist(err) {
		t.Fatalf("expected no trimmed output after failure, stat err=%v", err)
	}
}

type fakeProber struct {
	duration string
	calls    int
}

func (f *fakeProber) Probe(context.Context, string) (ffprobe.Result, error) {
	f.calls++
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "audio"}},
		Format:  ffprobe.Format{Duration: f.duration},
	}, nil
}

func TestTrimVerifiesDuration(t *testing.T) {
	cfg, src, dest := setup(t, testsupport.WithVerifyDuration(0.5))
	exec := &testsupport.FakeExecutor{}

	short := &fakeProber{duration: "2.0"}
	tr, _ := audio.NewTrimmer(cfg, exec, audio.WithProber(short))
	res := tr.Trim(context.Background(), src, 10, 15, dest)
	if res.OK() || !errors.Is(res.Err, services.ErrValidation) || !errors.Is(res.Err, services.ErrTrim) {
		t.Fatalf("expected validation failure, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dest, "abc123.wav")); !os.IsNotExist(err) {
		t.Fatal("short clip must not be promoted")
	}

	full := &fakeProber{duration: "5.0"}
	tr, _ = audio.NewTrimmer(cfg, exec, audio.WithProber(full))
	if res := tr.Trim(context.Background(), src, 10, 15, dest); !res.OK() {
		t.Fatalf("expected ok, got %v", res.Err)
	}
	if full.calls != 1 {
		t.Fatalf("expected one probe, got %d", full.calls)
	}
}

func TestOutputName(t *testing.T) {
	if got := audio.OutputName("/work/raw/abc123.webm"); got != "abc123.wav" {
		t.Fatalf("unexpected name %s", got)
	}
	if got := audio.OutputName("/work/transcoded/abc123.wav"); got != "abc123.wav" {
		t.Fatalf("unexpected name %s", got)
	}
}

func TestHealthCheckMissingBinary(t *testing.T) {
	cfg, _, _ := setup(t)
	cfg.FFmpeg.Binary = filepath.Join(t.TempDir(), "no-ffmpeg")
	tr, _ := audio.NewTranscoder(cfg, &testsupport.FakeExecutor{})
	if h := tr.HealthCheck(context.Background()); h.Ready {
		t.Fatalf("expected unhealthy, got %+v", h)
	}
}
