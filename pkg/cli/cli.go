// Package cli wires configuration, logging, the streaming subsystem, and
// the HTTP servers into the fluentstream command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fluentstream/fluentstream/pkg/config"
	"github.com/fluentstream/fluentstream/pkg/health"
	"github.com/fluentstream/fluentstream/pkg/observability/logger"
	"github.com/fluentstream/fluentstream/pkg/version"
)

const serviceName = "fluentstream"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var configFile string
	var logLevel string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Realtime SSE streaming service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")

	root.AddCommand(newServeCommand(&configFile, &logLevel))
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newServeCommand(configFile, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(*configFile, "FLUENTSTREAM").Load()
			if err != nil {
				return err
			}
			if *logLevel != "" {
				cfg.Logging.Level = *logLevel
			}

			log, err := buildLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, log)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build metadata",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Current(serviceName).String())
		},
	}
}

func buildLogger(cfg config.LoggingConfig) (*logger.ZapLogger, error) {
	level, err := logger.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logger.NewZapLogger(logger.Config{Level: level, Format: format})
}

// registerManagerCheck reports the streaming subsystem itself as a
// readiness component, with the connection count as metadata.
func registerManagerCheck(checks *health.Registry, activeConnections func() int) {
	checks.RegisterFunc("sse_manager", func(ctx context.Context) health.CheckResult {
		return health.CheckResult{
			Name:   "sse_manager",
			Status: health.StatusHealthy,
			Metadata: map[string]any{
				"active_connections": activeConnections(),
			},
		}
	})
}
