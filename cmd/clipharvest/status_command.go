package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipharvest/internal/config"
	"clipharvest/internal/index"
	"clipharvest/internal/ledger"
	"clipharvest/internal/stage"
	"clipharvest/internal/workspace"
)

type statusFlags struct {
	failures bool
	runs     int
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var flags statusFlags

	cmd := &cobra.Command{
		Use:   "status [manifest-id...]",
		Short: "Show the latest run of each workspace",
		Long: `Status reads each workspace's outcome ledger and index.

With no arguments every workspace under work_dir is listed. Pass manifest ids
to narrow the listing; --failures then lists the failed rows of the latest run
and --runs shows earlier runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				infos, err := workspace.List(cfg.Paths.WorkDir)
				if err != nil {
					return fmt.Errorf("list workspaces: %w", err)
				}
				for _, info := range infos {
					ids = append(ids, info.ID)
				}
			}
			sort.Strings(ids)

			statuses := make([]workspaceStatus, 0, len(ids))
			for _, id := range ids {
				st, err := loadStatus(cmd.Context(), cfg, id, flags)
				if err != nil {
					return err
				}
				statuses = append(statuses, st)
			}
			return ctx.emit(cmd, statuses, func() error {
				printStatus(cmd, statuses, flags)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&flags.failures, "failures", false, "List failed rows of the latest run")
	cmd.Flags().IntVar(&flags.runs, "runs", 0, "Show this many earlier runs per workspace")
	return cmd
}

type workspaceStatus struct {
	ID           string         `json:"id"`
	IndexEntries int            `json:"index_entries"`
	Latest       *runView       `json:"latest_run,omitempty"`
	ByStage      map[string]int `json:"failures_by_stage,omitempty"`
	Failures     []failureView  `json:"failures,omitempty"`
	History      []runView      `json:"history,omitempty"`
}

type runView struct {
	ID          string    `json:"id"`
	Manifest    string    `json:"manifest"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Processed   int       `json:"processed"`
	Recorded    int       `json:"recorded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	ParseErrors int       `json:"parse_errors"`
	Error       string    `json:"error,omitempty"`
}

func viewRun(run ledger.Run) runView {
	return runView{
		ID:          run.ID,
		Manifest:    run.ManifestPath,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		Processed:   run.Totals.Processed,
		Recorded:    run.Totals.Recorded,
		Skipped:     run.Totals.Skipped,
		Failed:      run.Totals.Failed,
		ParseErrors: run.Totals.ParseErrors,
		Error:       run.ErrorMessage,
	}
}

func loadStatus(ctx context.Context, cfg *config.Config, id string, flags statusFlags) (workspaceStatus, error) {
	ws := workspace.New(cfg.Paths.WorkDir, id)
	st := workspaceStatus{ID: id}

	entries, err := index.ReadEntries(ws.IndexPath)
	if err != nil {
		return st, fmt.Errorf("read index for %s: %w", id, err)
	}
	st.IndexEntries = len(entries)

	if _, err := os.Stat(ws.LedgerPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("stat ledger for %s: %w", id, err)
	}
	store, err := ledger.Open(ws.LedgerPath)
	if err != nil {
		return st, fmt.Errorf("open ledger for %s: %w", id, err)
	}
	defer store.Close()

	latest, err := store.LatestRun(ctx)
	if err != nil {
		return st, fmt.Errorf("read ledger for %s: %w", id, err)
	}
	if latest == nil {
		return st, nil
	}
	view := viewRun(*latest)
	st.Latest = &view

	if flags.failures {
		if st.ByStage, err = store.FailuresByStage(ctx, latest.ID); err != nil {
			return st, fmt.Errorf("summarize failures for %s: %w", id, err)
		}
		failed, err := store.Outcomes(ctx, latest.ID, ledger.StateFailed)
		if err != nil {
			return st, fmt.Errorf("list failures for %s: %w", id, err)
		}
		for _, rec := range failed {
			st.Failures = append(st.Failures, failureView{Line: rec.Line, Identifier: rec.Identifier, Stage: rec.FailedStage, Reason: rec.Reason})
		}
	}
	if flags.runs > 0 {
		runs, err := store.Runs(ctx, flags.runs+1)
		if err != nil {
			return st, fmt.Errorf("list runs for %s: %w", id, err)
		}
		for _, run := range runs {
			if run.ID == latest.ID {
				continue
			}
			st.History = append(st.History, viewRun(run))
		}
	}
	return st, nil
}

func printStatus(cmd *cobra.Command, statuses []workspaceStatus, flags statusFlags) {
	out := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(out, "No workspaces found")
		return
	}

	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, statusRow(st.ID, st.IndexEntries, st.Latest))
	}
	fmt.Fprint(out, renderTable(tableSpec{
		Headers: []string{"Manifest", "Last Run", "State", "Recorded", "Skipped", "Failed", "Index"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	}))

	for _, st := range statuses {
		if flags.failures && st.Latest != nil {
			printFailures(cmd, st)
		}
		if len(st.History) > 0 {
			history := make([][]string, 0, len(st.History))
			for i := range st.History {
				history = append(history, statusRow(st.ID, -1, &st.History[i]))
			}
			fmt.Fprintf(out, "\n%s earlier runs:\n", st.ID)
			fmt.Fprint(out, renderTable(tableSpec{
				Headers: []string{"Manifest", "Started", "State", "Recorded", "Skipped", "Failed", "Index"},
				Rows:    history,
				Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			}))
		}
	}
}

func printFailures(cmd *cobra.Command, st workspaceStatus) {
	out := cmd.OutOrStdout()
	if len(st.Failures) == 0 {
		fmt.Fprintf(out, "\n%s: no failed rows in run %s\n", st.ID, st.Latest.ID)
		return
	}
	stages := make([]string, 0, len(st.ByStage))
	for name := range st.ByStage {
		stages = append(stages, name)
	}
	sort.Strings(stages)
	fmt.Fprintf(out, "\n%s failures by stage:", st.ID)
	for _, name := range stages {
		fmt.Fprintf(out, " %s=%d", stage.Label(name), st.ByStage[name])
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(st.Failures))
	for _, f := range st.Failures {
		rows = append(rows, []string{strconv.Itoa(f.Line), f.Identifier, stage.Label(f.Stage), f.Reason})
	}
	fmt.Fprint(out, renderTable(tableSpec{
		Headers: []string{"Line", "Identifier", "Stage", "Reason"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	}))
}

func statusRow(id string, indexEntries int, run *runView) []string {
	indexCol := "-"
	if indexEntries >= 0 {
		indexCol = strconv.Itoa(indexEntries)
	}
	if run == nil {
		return []string{id, "never", "-", "-", "-", "-", indexCol}
	}
	state := "running"
	switch {
	case run.Error != "":
		state = "aborted"
	case !run.FinishedAt.IsZero():
		state = "finished"
	}
	return []string{
		id,
		humanize.Time(run.StartedAt),
		state,
		strconv.Itoa(run.Recorded),
		strconv.Itoa(run.Skipped),
		strconv.Itoa(run.Failed),
		indexCol,
	}
}
