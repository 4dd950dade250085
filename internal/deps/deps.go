package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"clipharvest/internal/config"
)

// Requirement names a tool binary the pipeline invokes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the resolution of one Requirement. Command is the configured
// value; Path is the binary that will actually run when Available.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check resolves every tool the configured pipeline uses. An ffprobe that is
// not found as configured falls back to CheckFFprobe.
func Check(cfg *config.Config) []Status {
	statuses := CheckBinaries(Requirements(cfg))
	for i, status := range statuses {
		if status.Name != ffprobeName || status.Available {
			continue
		}
		fallback := CheckFFprobe(cfg.FFmpeg.Binary, cfg.FFmpeg.FFprobeBinary)
		fallback.Optional = status.Optional
		statuses[i] = fallback
	}
	return statuses
}

// CheckBinaries resolves each requirement against PATH. Commands containing
// a path separator are checked in place.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		status.Path, status.Detail = resolve(status.Command)
		status.Available = status.Detail == ""
		results = append(results, status)
	}
	return results
}

func resolve(command string) (string, string) {
	if command == "" {
		return "", "command not configured"
	}
	if strings.ContainsRune(command, os.PathSeparator) {
		info, err := os.Stat(command)
		switch {
		case err != nil:
			return "", fmt.Sprintf("binary %q not found", command)
		case !isExecutable(info):
			return "", fmt.Sprintf("%q is not executable", command)
		}
		return command, ""
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Sprintf("binary %q not found", command)
	}
	return path, ""
}
