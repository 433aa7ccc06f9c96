// Package cli implements the LearnQuest command-line interface using Cobra.
// Each subcommand maps to one engine operation run against the local store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "learnquest",
	Short: "LearnQuest: points, levels, streaks and badges for learning platforms",
	Long: `LearnQuest turns learning events into rewards.
Activity completions, enrollments and course completions earn points,
raise levels, extend streaks and unlock badges. Leaderboards rank learners
by points, level or badges over daily, weekly, monthly or all-time windows.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $LEARNQUEST_HOME/config.toml)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
