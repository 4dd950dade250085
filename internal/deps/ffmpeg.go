package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"clipharvest/internal/config"
)

const ffprobeName = "FFprobe"

// Requirements lists the external tools the configured pipeline will invoke.
// yt-dlp is only required for the yt-dlp fetch backend, and ffprobe only when
// trimmed clips are verified.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	var reqs []Requirement
	if cfg.Fetch.Backend == config.FetchBackendYTDLP {
		reqs = append(reqs, Requirement{
			Name:        "yt-dlp",
			Command:     cfg.Fetch.Binary,
			Description: "Required to fetch remote media",
		})
	}
	reqs = append(reqs, Requirement{
		Name:        "FFmpeg",
		Command:     cfg.FFmpeg.Binary,
		Description: "Required to transcode and trim audio",
	})
	reqs = append(reqs, Requirement{
		Name:        ffprobeName,
		Command:     cfg.FFmpeg.FFprobeBinary,
		Description: "Verifies trimmed clip durations",
		Optional:    !cfg.Validation.VerifyDuration,
	})
	return reqs
}

// CheckFFprobe reports the ffprobe binary that will be executed.
//
// A configured command that resolves wins. Otherwise an ffprobe sitting next
// to the ffmpeg binary is preferred, since static ffmpeg builds ship both
// tools together, and PATH is the last resort.
func CheckFFprobe(ffmpegCommand, ffprobeCommand string) Status {
	result := Status{
		Name:        ffprobeName,
		Description: "Verifies trimmed clip durations",
	}

	if configured := strings.TrimSpace(ffprobeCommand); configured != "" {
		if resolved, detail := resolve(configured); detail == "" {
			result.Command = resolved
			result.Path = resolved
			result.Available = true
			return result
		}
	}

	if ffmpegBinary := strings.TrimSpace(ffmpegCommand); ffmpegBinary != "" {
		if resolved, err := exec.LookPath(ffmpegBinary); err == nil {
			candidate := siblingBinary(resolved, "ffprobe")
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Path = candidate
				result.Available = true
				return result
			}
		}
	}

	name := "ffprobe"
	if path, err := exec.LookPath(name); err == nil {
		result.Command = path
		result.Path = path
		result.Available = true
		return result
	}

	result.Command = name
	result.Detail = fmt.Sprintf("binary %q not found", name)
	return result
}

func siblingBinary(path, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(path), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
