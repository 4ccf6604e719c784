package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the process configuration without touching any source",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("%s version %s by %s\n", cfg.Database.Name, cfg.Database.Version, cfg.Database.Author)
		fmt.Printf("  %d sources, %d node types, %d relationship types\n",
			len(cfg.Sources), len(cfg.Nodes), len(cfg.Relationships))

		labels := make([]string, 0, len(cfg.Nodes))
		for label := range cfg.Nodes {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Printf("  node %s <- %v\n", label, cfg.Nodes[label].NodeSourceOrder())
		}

		types := make([]string, 0, len(cfg.Relationships))
		for t := range cfg.Relationships {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			rel := cfg.Relationships[t]
			fmt.Printf("  rel (%s)-[%s]->(%s) <- %v\n", rel.StartNode, t, rel.EndNode, rel.RelSourceOrder())
		}

		fmt.Println("configuration OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
