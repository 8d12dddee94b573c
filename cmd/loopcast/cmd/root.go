// Package cmd implements the loopcast CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/observability"
	"github.com/jmylchreest/loopcast/internal/version"
)

var (
	// cfgFile holds the --config flag.
	cfgFile string

	// cfg is the effective configuration, loaded before any subcommand runs.
	cfg *config.Config

	// logLevel backs the default logger so a config reload can change it.
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:     "loopcast",
	Short:   "Loop local video files to an RTMP ingest on a schedule",
	Version: version.Short(),
	Long: `loopcast streams a local video file on an endless loop to an RTMP
endpoint such as YouTube Live, supervising one ffmpeg process per session.

Sessions can start immediately or at a later time, stop after a duration or
at a fixed end time, and are restarted when ffmpeg fails. Saved stream
definitions with cron schedules are started automatically by the server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Set here to avoid an initialization cycle through rootCmd.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd.Root().PersistentFlags())
	}

	// Flags are not bound to viper so that an unset flag never hides an
	// environment variable or config value.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml, /etc/loopcast/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// initConfig loads the configuration and installs the default logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) when given
//  2. Environment variables (LOOPCAST_LOGGING_LEVEL, ...)
//  3. Config file values
//  4. Built-in defaults
func initConfig(flags *pflag.FlagSet) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		c.Logging.Level = normalizeLevel(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		c.Logging.Format = strings.ToLower(format)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	cfg = c
	logLevel.Set(observability.ParseLevel(c.Logging.Level))
	slog.SetDefault(observability.NewLogger(c.Logging, os.Stderr, logLevel))
	return nil
}

func normalizeLevel(level string) string {
	level = strings.ToLower(level)
	if level == "warning" {
		return "warn"
	}
	return level
}
