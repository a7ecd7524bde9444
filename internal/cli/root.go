// Package cli provides the command-line interface for the assistant backend.
package cli

import (
	"fmt"
	"os"
	"strings"

	"dwiju-assistant/backend/pkg/config"
	"dwiju-assistant/backend/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "1.0.0"

	// Global flags
	logLevel string

	cfg *config.Config
	log *logger.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dwiju",
	Short: "Dwiju assistant backend",
	Long: `Dwiju serves the assistant's chat API: authenticated chat sessions with
their transcripts and usage accounting, the feature catalog, and the
websocket chat channel.

Configuration is read from the environment and an optional .env file.
Without a subcommand it runs serve.`,
	Version:       Version,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.New()
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if cfg.Server.Version == "" {
			cfg.Server.Version = Version
		}

		var err error
		log, err = logger.New(logger.Config{
			Level:    cfg.Logging.Level,
			JSON:     !strings.EqualFold(cfg.Logging.Format, "text"),
			Output:   os.Stderr,
			FilePath: cfg.Logging.File,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger.SetGlobal(log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Close()
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
