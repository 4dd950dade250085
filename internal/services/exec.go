package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Executor abstracts external tool invocation for testability. A nil error
// means the tool exited with status zero.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) error
}

// CommandError reports a non-zero exit (or launch failure) of an external tool.
type CommandError struct {
	Binary   string
	ExitCode int
	Output   []string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Binary, e.ExitCode)
	if e.ExitCode < 0 {
		msg = fmt.Sprintf("%s failed to run", e.Binary)
	}
	if len(e.Output) > 0 {
		msg += ": " + strings.Join(e.Output, " | ")
	}
	if e.Err != nil && e.ExitCode < 0 {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

const outputTailLines = 8

// CommandExecutor runs tools with os/exec, keeping the last few output lines
// for failure reporting. OnLine, when set, receives every stdout/stderr line;
// calls are serialized.
type CommandExecutor struct {
	OnLine func(line string)
}

// Run executes binary with args and waits for it to exit.
func (c CommandExecutor) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &CommandError{Binary: binary, ExitCode: -1, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &CommandError{Binary: binary, ExitCode: -1, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return &CommandError{Binary: binary, ExitCode: -1, Err: fmt.Errorf("start command: %w", err)}
	}

	tail := newLineTail(outputTailLines)
	var forwardMu sync.Mutex
	var wg sync.WaitGroup
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			tail.add(line)
			if c.OnLine != nil {
				forwardMu.Lock()
				c.OnLine(line)
				forwardMu.Unlock()
			}
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return Wrap(ErrTimeout, "", binary, "deadline exceeded", ctxErr)
			}
			return ctxErr
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &CommandError{Binary: binary, ExitCode: code, Output: tail.lines(), Err: err}
	}
	return nil
}

type lineTail struct {
	mu    sync.Mutex
	max   int
	items []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, line)
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.items...)
}
