package cli

import (
	"github.com/spf13/cobra"
	"github.com/tutu-network/learnquest/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the LearnQuest API server",
	Long: `Start the HTTP API server (127.0.0.1:8420 by default) and keep the
configured leaderboards warm in the cache.`,
	Example: `  learnquest serve
  learnquest serve --config /etc/learnquest/config.toml --port 9000`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig()
	if err != nil {
		return err
	}
	d, err := daemon.NewWithConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return d.Serve(cmd.Context())
}

// serveConfig loads the config and applies the listen flags before the
// daemon validates it.
func serveConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfigFile(configPath)
	if err != nil {
		return cfg, err
	}
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	return cfg, nil
}
