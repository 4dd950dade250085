package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Call records one external tool invocation.
type Call struct {
	Binary string
	Args   []string
}

// FakeExecutor stands in for external tools. Each call is recorded; unless
// Handle returns an error the call "succeeds" by writing a small file at the
// tool's output path (the -o template for yt-dlp, the last argument
// otherwise).
type FakeExecutor struct {
	// Handle, when set, runs before the output is written. A non-nil error
	// is returned as the tool failure.
	Handle func(binary string, args []string) error

	mu    sync.Mutex
	calls []Call
}

// Run implements services.Executor.
func (f *FakeExecutor) Run(ctx context.Context, binary string, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Binary: binary, Args: append([]string(nil), args...)})
	handle := f.Handle
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if handle != nil {
		if err := handle(binary, args); err != nil {
			return err
		}
	}
	output := OutputPath(args)
	if output == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(output, []byte("fake media payload"), 0o644)
}

// Calls returns a snapshot of every recorded invocation.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsFor returns the recorded invocations of binary (matched on base name).
func (f *FakeExecutor) CallsFor(binary string) []Call {
	var out []Call
	for _, call := range f.Calls() {
		if filepath.Base(call.Binary) == binary {
			out = append(out, call)
		}
	}
	return out
}

// OutputPath picks the file a tool invocation would write.
func OutputPath(args []string) string {
	for i, arg := range args {
		if arg == "-o" && i+1 < len(args) {
			return strings.ReplaceAll(args[i+1], "%(ext)s", "mp4")
		}
	}
	if len(args) == 0 {
		return ""
	}
	return args[len(args)-1]
}

// HasArg reports whether args contains value.
func HasArg(args []string, value string) bool {
	for _, arg := range args {
		if arg == value {
			return true
		}
	}
	return false
}
