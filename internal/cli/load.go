package cli

import (
	"fmt"

	neo4jdb "graphetl/internal/database/neo4j"
	"graphetl/internal/load"
	"graphetl/internal/staging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Merge the staged graph into Neo4j",
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

		client, err := neo4jdb.NewClient(ctx, &cfg.Neo4j)
		if err != nil {
			return err
		}
		defer client.Close(ctx)

		loader := load.NewLoader(client, store, cfg.Neo4j.BatchSize, uuid.New().String())
		report, err := loader.Load(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("loaded in %s\n", report.Duration.Round(1e6))
		for _, label := range sortedCounts(report.Nodes) {
			fmt.Printf("  node %-20s %8d\n", label, report.Nodes[label])
		}
		for _, t := range sortedCounts(report.Rels) {
			fmt.Printf("  rel  %-20s %8d\n", t, report.Rels[t])
		}
		if report.Dangling > 0 {
			fmt.Printf("  %d relationships referenced nodes that were never staged\n", report.Dangling)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
