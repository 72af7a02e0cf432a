// Package cmd provides the CLI commands for the Devika client.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/appdir"
	"github.com/stitionai/devika-go/internal/config"
	"github.com/stitionai/devika-go/internal/logging"
)

var (
	// Global flags
	serverURL string
	debug     bool
	logLevel  string
	logToFile bool
	logJSON   bool

	// Loaded configuration
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devika",
	Short: "Devika - a client for the Devika AI software engineer",
	Long: `Devika is a command-line client for a Devika backend.

It keeps a live view of the agent's execution state over a persistent
event channel, lets you dispatch prompts, and manages projects,
settings, and transcripts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := appdir.EnsureDir(); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if serverURL != "" {
			cfg.Server.URL = serverURL
		}

		// Priority: --log-level flag > --debug flag > config file
		effectiveLevel := cfg.Log.Level
		if logLevel != "" {
			effectiveLevel = logLevel
		} else if debug {
			effectiveLevel = "debug"
		}

		var fileLog *logging.FileLogConfig
		if logToFile || cfg.Log.File {
			logsDir, err := appdir.LogsDir()
			if err != nil {
				return err
			}
			fileLog = &logging.FileLogConfig{
				Path: filepath.Join(logsDir, "devika.log"),
			}
		}

		return logging.Initialize(logging.Config{
			Level:   effectiveLevel,
			FileLog: fileLog,
			JSON:    logJSON || cfg.Log.JSON,
		})
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "",
		"Backend URL (overrides config and DEVIKA_SERVER_URL)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "logfile", false,
		"Also write rotated logs under the data directory")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Write logs as JSON lines")
}
