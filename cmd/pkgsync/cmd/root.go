package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pkgsync/internal/config"
	"github.com/oshokin/pkgsync/internal/fetch"
	"github.com/oshokin/pkgsync/internal/logger"
	"github.com/oshokin/pkgsync/internal/service/selfupdate"
	"github.com/oshokin/pkgsync/internal/service/sync"
	"github.com/oshokin/pkgsync/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel sets the minimum level for console output.
	logLevel string

	// rootCmd represents the base command that runs one synchronization.
	rootCmd = &cobra.Command{
		Use:   "pkgsync",
		Short: "Keep a locally mirrored package in sync with its upstream release.",
		Long: `Check an upstream HTTP location for a newer release artifact, download it
when changed, regenerate the local repository index, verify the vendor
signing key and install or upgrade the package through the system package
manager, falling back to a direct install of the downloaded file.

Run with no arguments for a normal synchronization. The tool refuses to run
as root and elevates individual commands through sudo instead.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := newSignalContext()
			defer stop()

			applyLogLevel(ctx)

			return sync.Run(ctx, &sync.Options{ConfigPath: configPath})
		},
	}

	// selfUpdateCmd applies the published pkgsync release in place.
	selfUpdateCmd = &cobra.Command{
		Use:   "self-update",
		Short: "Replace this binary with the published release.",
		Long: `Download the published pkgsync release, verify it against its detached
SHA-256 checksum and replace the running binary atomically. The normal
synchronization run only advises about newer releases; this command is the
sole way the binary updates itself.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := newSignalContext()
			defer stop()

			applyLogLevel(ctx)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			service := selfupdate.NewService(fetch.NewClient(cfg.Timeout), cfg.SelfURL)

			return service.Apply(ctx)
		},
	}
)

// Execute runs the pkgsync CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(selfUpdateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newSignalContext sets up graceful shutdown handling.
func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// applyLogLevel applies the --log-level flag, warning about unknown values.
func applyLogLevel(ctx context.Context) {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		logger.WarnKV(ctx, "Unknown log level, using info", "log_level", logLevel)
	}

	logger.SetLevel(level)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l",
		"info", "minimum log level (debug, info, warn, error, fatal)")
}
