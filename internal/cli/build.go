package cli

import (
	"fmt"
	"sort"

	"graphetl/internal/builder"
	"graphetl/internal/config"
	"graphetl/internal/models"

	"github.com/spf13/cobra"
)

var (
	buildWorkers int
	buildEvents  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Peek every source, harmonize schemas and stage the graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		gateEventSink(cfg, buildEvents)
		ctx := cmd.Context()

		progress := make(chan models.BuildEvent, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range progress {
				if ev.Message != "" {
					fmt.Printf("[%s] %s\n", ev.Stage, ev.Message)
				}
			}
		}()

		b := builder.New(cfg,
			builder.WithWorkers(buildWorkers),
			builder.WithProgress(progress),
		)
		defer b.Close(ctx)

		if err := b.Connect(ctx); err != nil {
			close(progress)
			<-done
			return err
		}
		report, err := b.Build(ctx)
		close(progress)
		<-done
		if err != nil {
			return err
		}

		fmt.Printf("\nrun %s finished in %s\n", report.RunID, report.Duration.Round(1e6))
		for _, label := range sortedCounts(report.Nodes) {
			fmt.Printf("  node %-20s %8d rows (%d merged)\n", label, report.Nodes[label], report.Merged[label])
		}
		for _, t := range sortedCounts(report.Rels) {
			fmt.Printf("  rel  %-20s %8d rows\n", t, report.Rels[t])
		}
		if report.Skipped > 0 {
			fmt.Printf("  skipped %d rows without a usable identifier\n", report.Skipped)
		}
		return nil
	},
}

func sortedCounts(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// gateEventSink keeps the kafka sink opt-in: without --events the build
// stays local even when a kafka section is configured.
func gateEventSink(cfg *config.Config, enabled bool) {
	if !enabled {
		cfg.Kafka = nil
	}
}

func init() {
	buildCmd.Flags().IntVar(&buildWorkers, "workers", 4, "node/relationship types staged concurrently")
	buildCmd.Flags().BoolVar(&buildEvents, "events", false, "publish build events to the configured kafka topic")
	rootCmd.AddCommand(buildCmd)
}
