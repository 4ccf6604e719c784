package cli

import (
	"fmt"

	"graphetl/internal/load"
	"graphetl/internal/staging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the staged graph as CSV files for neo4j-admin import",
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

		exporter := load.NewExporter(store, exportDir, cfg.Neo4j.BatchSize, uuid.New().String())
		report, err := exporter.Export(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("exported to %s in %s\n", report.Dir, report.Duration.Round(1e6))
		for _, f := range report.Files {
			fmt.Println("  " + f)
		}
		fmt.Println("run: neo4j-admin database import full @import.args <database>")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "out", "export", "directory for the CSV files")
	rootCmd.AddCommand(exportCmd)
}
