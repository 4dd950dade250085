package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipharvest/internal/logging"
	"clipharvest/internal/workspace"
)

func newWorkspaceCommand(ctx *commandContext) *cobra.Command {
	workspaceCmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage per-manifest workspaces",
	}

	workspaceCmd.AddCommand(newWorkspaceListCommand(ctx))
	workspaceCmd.AddCommand(newWorkspaceCleanCommand(ctx))

	return workspaceCmd
}

func newWorkspaceListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces under work_dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			infos, err := workspace.List(cfg.Paths.WorkDir)
			if err != nil {
				return fmt.Errorf("list workspaces: %w", err)
			}
			if infos == nil {
				infos = []workspace.Info{}
			}

			return ctx.emit(cmd, map[string]any{"work_dir": cfg.Paths.WorkDir, "workspaces": infos}, func() error {
				out := cmd.OutOrStdout()
				if len(infos) == 0 {
					fmt.Fprintln(out, "No workspaces found")
					return nil
				}
				fmt.Fprintf(out, "Work directory: %s\n\n", cfg.Paths.WorkDir)

				var totalSize int64
				var totalClips int
				rows := make([][]string, 0, len(infos))
				for _, info := range infos {
					totalSize += info.Size
					totalClips += info.Clips
					rows = append(rows, []string{
						info.ID,
						humanize.Time(info.ModTime),
						strconv.Itoa(info.Clips),
						humanize.Bytes(uint64(info.Size)),
						yesNo(info.Locked),
					})
				}
				fmt.Fprint(out, renderTable(tableSpec{
					Headers: []string{"Manifest", "Modified", "Clips", "Size", "In Use"},
					Rows:    rows,
					Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
					Footer:  []string{fmt.Sprintf("%d workspaces", len(infos)), "", strconv.Itoa(totalClips), humanize.Bytes(uint64(totalSize)), ""},
				}))
				return nil
			})
		},
	}
}

func newWorkspaceCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean [manifest-id...]",
		Short: "Remove workspaces",
		Long: `Remove named workspaces, or with --older-than every workspace not
modified within that duration. Workspaces held by a running clipharvest
process are never removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(args) == 0 && olderThan <= 0 {
				return fmt.Errorf("name workspaces to remove or pass --older-than")
			}

			var result workspace.CleanResult
			if len(args) > 0 {
				for _, id := range args {
					if err := workspace.Remove(cfg.Paths.WorkDir, id); err != nil {
						result.Errors = append(result.Errors, workspace.CleanupError{Path: id, Error: err})
						continue
					}
					result.Removed = append(result.Removed, id)
				}
			} else {
				result = workspace.CleanStale(cmd.Context(), cfg.Paths.WorkDir, olderThan, logging.NewNop())
			}

			if ctx.JSONMode() {
				errs := make([]string, 0, len(result.Errors))
				for _, e := range result.Errors {
					errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
				}
				return writeJSON(cmd, map[string]any{
					"removed": result.Removed,
					"skipped": result.Skipped,
					"errors":  errs,
				})
			}
			printCleanResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove workspaces not modified within this duration (e.g. 168h)")
	return cmd
}

func printCleanResult(cmd *cobra.Command, result workspace.CleanResult) {
	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 && len(result.Errors) == 0 && len(result.Skipped) == 0 {
		fmt.Fprintln(out, "No workspaces to clean")
		return
	}
	fmt.Fprintf(out, "Removed %d workspaces", len(result.Removed))
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, ", skipped %d in use", len(result.Skipped))
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, ", %d errors", len(result.Errors))
	}
	fmt.Fprintln(out)
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
	}
}
