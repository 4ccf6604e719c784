package cli

import (
	"fmt"
	"time"

	"graphetl/internal/staging"

	"github.com/spf13/cobra"
)

var inspectRun string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the runs and tables recorded in the staging database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := staging.Open(cfg.Staging.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		for _, run := range runs {
			finished := "-"
			if run.FinishedAt != nil {
				finished = run.FinishedAt.Format(time.RFC3339)
			}
			fmt.Printf("run %s  %s %s  started %s  finished %s  %s\n",
				run.RunID, run.DBName, run.DBVersion,
				run.StartedAt.Format(time.RFC3339), finished, run.Status)
		}

		runID := inspectRun
		if runID == "" {
			runID = runs[0].RunID
		}
		stats, err := store.TableStats(ctx, runID)
		if err != nil {
			return err
		}
		fmt.Printf("\ntables of run %s:\n", runID)
		for _, stat := range stats {
			line := fmt.Sprintf("  %-12s %-20s from %-15s %8d rows, %d skipped",
				stat.Kind, stat.Name, stat.Source, stat.Rows, stat.Skipped)
			if stat.File != "" {
				line += "  " + stat.File
				if stat.FileModified != nil {
					line += " (modified " + stat.FileModified.Format(time.RFC3339) + ")"
				}
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectRun, "run", "", "run id to show tables for (default: latest)")
	rootCmd.AddCommand(inspectCmd)
}
