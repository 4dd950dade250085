package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipharvest/internal/audio"
	"clipharvest/internal/fetcher"
	"clipharvest/internal/preflight"
	"clipharvest/internal/stage"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check directories, manifests, and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)

			var checkers []stage.HealthChecker
			if f, err := fetcher.New(cfg, nil); err == nil {
				checkers = append(checkers, f)
			} else {
				results = append(results, preflight.Result{Name: "Fetch stage", Detail: err.Error()})
			}
			if t, err := audio.NewTranscoder(cfg, nil); err == nil {
				checkers = append(checkers, t)
			} else {
				results = append(results, preflight.Result{Name: "Transcode stage", Detail: err.Error()})
			}
			if t, err := audio.NewTrimmer(cfg, nil); err == nil {
				checkers = append(checkers, t)
			} else {
				results = append(results, preflight.Result{Name: "Trim stage", Detail: err.Error()})
			}
			results = append(results, preflight.StageHealth(cmd.Context(), checkers...)...)

			if err := ctx.emit(cmd, results, func() error {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Name, checkState(r), r.Detail})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(tableSpec{
					Headers: []string{"Check", "State", "Detail"},
					Rows:    rows,
				}))
				if ctx.configPath != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Config: %s\n", ctx.configPath)
				}
				return nil
			}); err != nil {
				return err
			}

			if blocking := preflight.Blocking(results); len(blocking) > 0 {
				return fmt.Errorf("%d required checks failed", len(blocking))
			}
			return nil
		},
	}
}

func checkState(r preflight.Result) string {
	switch {
	case r.Passed:
		return "ok"
	case r.Optional:
		return "missing (optional)"
	default:
		return "FAILED"
	}
}
