// Package cli implements the pmsync command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
)

var (
	configPath string
	logLevel   string
	logFile    string
	logConsole bool

	// cfg is loaded before any subcommand runs.
	cfg *model.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "pmsync",
	Short: "Mirror Jira projects into a local store and track their health",
	Long: `pmsync keeps a local copy of Jira users, projects, boards, sprints, and
issues, derives a health verdict for every project, and records each
synchronization run for auditing.

Run 'pmsync serve' for scheduled syncs and the HTTP API, or 'pmsync sync'
for a single run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-file") {
			cfg.Log.File = logFile
		}
		if cmd.Flags().Changed("log-console") {
			cfg.Log.Console = logConsole
		}

		if err := logger.Init(logConfig(cfg.Log)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logger.Debug("pmsync started", logger.F("command", cmd.CommandPath()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Debug("pmsync exiting", logger.F("command", cmd.CommandPath()))
		_ = logger.Close()
	},
}

func logConfig(c model.LogConfig) logger.Config {
	return logger.Config{
		Level:      logger.ParseLevel(c.Level),
		FilePath:   c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxAgeDays: c.MaxAgeDays,
		MaxBackups: c.MaxBackups,
		Console:    c.Console,
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "log-console", false, "Also log to stderr")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(dashboardCmd)
}
