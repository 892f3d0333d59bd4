// Command simloop runs the closed simulation feedback loop and talks to it.
//
// @title simloop API
// @version 1.0
// @description Closed-loop simulation search: submit a simulation with a criterion and poll the family result.
// @host localhost:8080
// @BasePath /
package main

import (
	"fmt"
	"log/slog"
	"os"

	"go-sim-loop/internal/config"
	"go-sim-loop/internal/logging"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
	date    = "unknown"
)

// app carries what every subcommand shares once flags are parsed.
type app struct {
	configPath string
	serverURL  string
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "simloop",
		Short: "Closed-loop simulation search",
		Long: `simloop executes simulation requests, validates each result against a
criterion and, when a user request fails, generates perturbed variants of it
and runs them once more.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&a.serverURL, "server", "", "API base URL (default http://localhost:<server.port>)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(a),
		newSubmitCmd(a),
		newResultCmd(a),
	)
	return rootCmd
}

// baseURL resolves the API address used by the client commands.
func (a *app) baseURL() string {
	if a.serverURL != "" {
		return a.serverURL
	}
	return fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)
}
