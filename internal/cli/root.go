package cli

import (
	"fmt"
	"os"

	"graphetl/internal/config"
	"graphetl/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	logLevel    string
	stagingPath string
)

var rootCmd = &cobra.Command{
	Use:   "graphetl",
	Short: "Build graph databases from relational and flat-file sources",
	Long: `graphetl integrates data spread across MySQL, MongoDB, CSV and XLSX
sources into a single graph. A YAML process configuration declares the
sources and how their tables map onto node and relationship types; graphetl
harmonizes the schemas, stages the merged rows in SQLite and loads the
result into Neo4j or exports it for neo4j-admin.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.ParseLevel(logLevel))
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "graphetl.yaml", "path to the process configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&stagingPath, "staging", "", "override the staging database path")
}

// loadConfig reads and validates the process configuration. The log level
// from the file applies unless the flag overrides it; --staging overrides
// the configured staging path.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	overrideStaging(cfg, stagingPath)
	if !cmd.Flags().Changed("log-level") && !cmd.InheritedFlags().Changed("log-level") {
		logger.Init(logger.ParseLevel(cfg.Logger.Level))
	}
	return cfg, nil
}

// overrideStaging replaces the staging path when the flag was given, so the
// same configuration can build into alternate staging files.
func overrideStaging(cfg *config.Config, path string) {
	if path != "" {
		cfg.Staging.Path = path
	}
}
