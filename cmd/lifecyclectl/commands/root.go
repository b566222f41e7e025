package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lifecyclectl",
		Short: "Inspect and exercise component lifecycle manifests",
		Long: `lifecyclectl loads component manifests (CUE, YAML or JSON) and runs them
through the lifecycle registry.

Commands:
  - validate: admission policies, dependency resolution and cycle checks
  - graph:    dependency graph in DOT format
  - simulate: scripted lifecycle runs with telemetry and journaling
  - journal:  inspect the transition journal
  - policy:   list admission policies`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newSimulateCommand())
	rootCmd.AddCommand(newJournalCommand())
	rootCmd.AddCommand(newPolicyCommand())

	return rootCmd
}
