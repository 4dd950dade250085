package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clipharvest/internal/batch"
	"clipharvest/internal/config"
	"clipharvest/internal/logging"
	"clipharvest/internal/pipeline"
	"clipharvest/internal/preflight"
	"clipharvest/internal/services"
	"clipharvest/internal/stage"
)

// maxFailuresShown bounds the per-manifest failure listing after a run.
const maxFailuresShown = 10

type runFlags struct {
	manifests     []string
	rowLimit      int
	preferHighest bool
	reset         bool
	skipPreflight bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [manifest...]",
		Short: "Fetch, transcode, and trim every row of the configured manifests",
		Long: `Run processes each manifest in its own workspace, concurrently.

Manifests come from positional arguments, --manifest, or batch.manifests in the
configuration, in that order of preference. Rows whose trimmed clip already
exists are skipped unless --reset clears the workspace first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, flags, args); err != nil {
				return err
			}
			manifests, err := batch.Manifests(cfg.Batch.Manifests)
			if err != nil {
				return err
			}
			if len(manifests) == 0 {
				return fmt.Errorf("no manifests to process; pass paths as arguments or set batch.manifests")
			}

			if !flags.skipPreflight {
				if err := requirePreflight(cmd.Context(), cfg); err != nil {
					return err
				}
			}

			logger, closer, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			defer closer.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			exec := services.CommandExecutor{OnLine: func(line string) {
				logger.Debug("tool output", logging.String("line", line))
			}}
			dispatcher := batch.New(cfg,
				batch.WithLogger(logger),
				batch.WithPipelineOptions(cfg, pipeline.WithExecutor(exec)),
			)
			report := dispatcher.Run(runCtx, manifests)

			if err := ctx.emit(cmd, reportView(report), func() error {
				printReport(cmd.OutOrStdout(), report)
				return nil
			}); err != nil {
				return err
			}
			if err := runCtx.Err(); err != nil {
				return err
			}
			if failed := report.FailedUnits(); len(failed) > 0 {
				return fmt.Errorf("%d of %d manifests failed", len(failed), len(report.Units))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&flags.manifests, "manifest", "m", nil, "Manifest file to process (repeatable)")
	cmd.Flags().IntVar(&flags.rowLimit, "row-limit", 0, "Process at most this many rows per manifest (0 = all)")
	cmd.Flags().BoolVar(&flags.preferHighest, "prefer-highest-quality", true, "Request the best combined audio/video format")
	cmd.Flags().BoolVar(&flags.reset, "reset", false, "Clear each workspace before processing")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Do not check tools and directories before starting")
	return cmd
}

// applyRunFlags overlays explicitly set flags onto the [batch] section.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags, args []string) error {
	manifests := append(append([]string(nil), args...), flags.manifests...)
	if len(manifests) > 0 {
		cfg.Batch.Manifests = manifests
	}
	if cmd.Flags().Changed("row-limit") {
		cfg.Batch.RowLimit = flags.rowLimit
	}
	if cmd.Flags().Changed("prefer-highest-quality") {
		cfg.Batch.PreferHighestQuality = flags.preferHighest
	}
	if cmd.Flags().Changed("reset") {
		cfg.Batch.ResetWorkspaceOnStart = flags.reset
	}
	if err := cfg.Finalize(); err != nil {
		return fmt.Errorf("apply flags: %w", err)
	}
	return nil
}

func requirePreflight(ctx context.Context, cfg *config.Config) error {
	blocking := preflight.Blocking(preflight.RunAll(ctx, cfg))
	if len(blocking) == 0 {
		return nil
	}
	parts := make([]string, 0, len(blocking))
	for _, r := range blocking {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "run", strings.Join(parts, "; "), nil)
}

type unitView struct {
	Manifest    string        `json:"manifest"`
	Path        string        `json:"path"`
	Processed   int           `json:"processed"`
	Recorded    int           `json:"recorded"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	ParseErrors int           `json:"parse_errors"`
	Error       string        `json:"error,omitempty"`
	Failures    []failureView `json:"failures,omitempty"`
}

type failureView struct {
	Line       int    `json:"line"`
	Identifier string `json:"identifier,omitempty"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

type batchView struct {
	RunID    string     `json:"run_id"`
	Duration string     `json:"duration"`
	Units    []unitView `json:"units"`
}

func reportView(report batch.Report) batchView {
	view := batchView{RunID: report.RunID, Duration: report.Duration.Round(time.Millisecond).String()}
	for _, unit := range report.Units {
		uv := unitView{
			Manifest:    unit.Manifest.ID,
			Path:        unit.Manifest.Path,
			Processed:   unit.Summary.Processed,
			Recorded:    unit.Summary.Recorded,
			Skipped:     unit.Summary.Skipped,
			Failed:      unit.Summary.Failed,
			ParseErrors: unit.Summary.ParseErrors,
		}
		if unit.Err != nil {
			uv.Error = unit.Err.Error()
		}
		for _, f := range unit.Summary.Failures {
			uv.Failures = append(uv.Failures, failureFrom(f))
		}
		view.Units = append(view.Units, uv)
	}
	return view
}

func failureFrom(o pipeline.Outcome) failureView {
	return failureView{Line: o.Line, Identifier: o.Row.Identifier, Stage: o.FailedStage, Reason: o.Reason}
}

func printReport(out io.Writer, report batch.Report) {
	rows := make([][]string, 0, len(report.Units))
	processed, recorded, skipped, failed := report.Totals()
	for _, unit := range report.Units {
		status := "ok"
		if unit.Err != nil {
			status = services.Details(unit.Err).Kind
		}
		rows = append(rows, []string{
			unit.Manifest.ID,
			strconv.Itoa(unit.Summary.Processed),
			strconv.Itoa(unit.Summary.Recorded),
			strconv.Itoa(unit.Summary.Skipped),
			strconv.Itoa(unit.Summary.Failed),
			status,
		})
	}
	fmt.Fprint(out, renderTable(tableSpec{
		Headers: []string{"Manifest", "Processed", "Recorded", "Skipped", "Failed", "Status"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
		Footer: []string{
			fmt.Sprintf("%d manifests", len(report.Units)),
			strconv.Itoa(processed),
			strconv.Itoa(recorded),
			strconv.Itoa(skipped),
			strconv.Itoa(failed),
			"",
		},
	}))

	for _, unit := range report.Units {
		if unit.Err != nil {
			fmt.Fprintf(out, "\n%s: %v\n", unit.Manifest.ID, unit.Err)
		}
		if len(unit.Summary.Failures) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s failures:\n", unit.Manifest.ID)
		for i, f := range unit.Summary.Failures {
			if i == maxFailuresShown {
				fmt.Fprintf(out, "  ... %d more (see `clipharvest status %s --failures`)\n", len(unit.Summary.Failures)-i, unit.Manifest.ID)
				break
			}
			fmt.Fprintf(out, "  line %d %s: %s: %s\n", f.Line, f.Row.Identifier, stage.Label(f.FailedStage), f.Reason)
		}
	}
	fmt.Fprintf(out, "\nRun %s finished in %s\n", report.RunID, report.Duration.Round(time.Millisecond))
}
