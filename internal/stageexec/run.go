package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipharvest/internal/logging"
	"clipharvest/internal/services"
	"clipharvest/internal/stage"
)

// Options controls one stage execution.
type Options struct {
	Logger    *slog.Logger
	StageName string
	// Execute performs the stage. It receives a context annotated with the
	// stage name.
	Execute func(ctx context.Context) stage.Result
}

// Run executes a stage and logs its start, completion, or failure. A panic in
// Execute is converted into a failed result.
func Run(ctx context.Context, opts Options) stage.Result {
	stageCtx := services.WithStage(ctx, opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if opts.Execute == nil {
		return stage.Failed(opts.StageName, fmt.Errorf("stage handler unavailable: %s", opts.StageName))
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
	)

	started := time.Now()
	result := execute(stageCtx, opts)
	if result.Stage == "" {
		result.Stage = opts.StageName
	}
	elapsed := time.Since(started)

	if !result.OK() {
		handleFailure(stageLogger, result, elapsed)
		return result
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output", result.Path),
		logging.Duration("duration", elapsed),
	)
	return result
}

func execute(ctx context.Context, opts Options) (result stage.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = stage.Failed(opts.StageName, services.Wrap(services.ErrPanic, opts.StageName, "execute", "stage panicked", fmt.Errorf("%v", r)))
		}
	}()
	return opts.Execute(ctx)
}

func handleFailure(logger *slog.Logger, result stage.Result, elapsed time.Duration) {
	details := services.Details(result.Err)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = result.Reason()
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String(logging.FieldErrorHint, hintFor(result.Stage)),
		logging.String("error_message", message),
		logging.Duration("duration", elapsed),
	)
}

func hintFor(stageName string) string {
	switch stageName {
	case stage.Fetch:
		return "check the identifier is still available and the fetch backend works"
	case stage.Transcode:
		return "check ffmpeg can decode the fetched file"
	case stage.Trim:
		return "check the requested window lies inside the media duration"
	case stage.Record:
		return "check the workspace index file is writable"
	default:
		return "check logs for details"
	}
}
