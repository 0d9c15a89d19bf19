package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/plugin-packager/internal/config"
	"github.com/oshokin/plugin-packager/internal/logger"
	"github.com/oshokin/plugin-packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the configured logging level.
	logLevel string

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:   "plugin-packager",
		Short: "Package plugin source trees into ZIP archives",
		Long: `Builds a ZIP archive from a plugin source directory.

Files whose relative path matches any exclusion glob are left out, and an
excluded directory is skipped together with everything below it. The archive
is written to a temporary file next to the destination and moved into place
only when complete, so a failed run never leaves a partial archive behind.`,
		SilenceUsage: true,
	}
)

// Execute runs the plugin-packager CLI and exits with a status matching the error kind.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// signalContext returns a context cancelled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// loadSettings reads the configuration file and applies the global overrides.
func loadSettings(cmd *cobra.Command, flags *packagingFlags) (*config.Config, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		settings.LogLevel = logLevel
	}

	if flags != nil {
		flags.apply(cmd, settings)
	}

	if err = config.Validate(settings); err != nil {
		return nil, err
	}

	level, _ := logger.ParseLogLevel(settings.LogLevel)
	logger.SetLevel(level)

	return settings, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default "+config.DefaultConfigFilename+" if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel,
		"logging level: debug, info, warn, error")
}
