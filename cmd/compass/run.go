package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/compass/pkg/audit/retention"
	auditstorage "mercator-hq/compass/pkg/audit/storage"
	"mercator-hq/compass/pkg/cli"
	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/repository"
	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/rules/source"
	"mercator-hq/compass/pkg/server"
	"mercator-hq/compass/pkg/telemetry"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Compass API server",
	Long: `Start the Compass API server with the specified configuration.

The server loads the configured rule source, keeps it fresh (file watching
and scheduled refreshes) and serves the evaluation and lifecycle API.

Examples:
  # Start with default config
  compass run

  # Start with custom config
  compass run --config /etc/compass/config.yaml

  # Override listen address
  compass run --listen 0.0.0.0:8080

  # Validate config without starting server
  compass run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	tel, err := telemetry.New(&cfg.Telemetry, Version, os.Stdout)
	if err != nil {
		return cli.NewConfigError("telemetry", err.Error())
	}
	logger := tel.Logger
	slog.SetDefault(logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	fmt.Fprintf(out, "Compass v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)

	a, err := newApp(ctx, cfg, appOptions{logger: logger, metrics: tel.Metrics, tracer: tel.Tracer})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close stores", "error", err)
		}
	}()

	a.repo.OnPublish(func(ct rules.ContextType, version int64) {
		logger.Info("rule set active", "context_type", ct, "version", version)
	})

	// The server starts even when the first load fails: evaluations report
	// degraded results and readiness fails until a refresh succeeds.
	loadCtx, cancel := context.WithTimeout(ctx, cfg.Rules.Git.Timeout)
	if err := a.repo.RefreshAll(loadCtx); err != nil {
		logger.Error("initial rule load failed", "error", err)
		fmt.Fprintf(out, "✗ Rules not loaded: %v\n", err)
	} else {
		fmt.Fprintf(out, "✓ Rules loaded from %s\n", a.source.Name())
	}
	cancel()

	if err := startRefreshers(ctx, cfg, a.repo, a.source, logger); err != nil {
		return cli.NewCommandError("run", err)
	}

	if cfg.Audit.Retention.Days > 0 {
		scheduler := retention.NewScheduler(retention.NewPruner(a.audit, cfg.Audit.Retention, retention.WithLogger(logger)))
		if err := scheduler.Start(ctx); err != nil {
			logger.Warn("failed to start audit retention scheduler", "error", err)
		} else {
			defer scheduler.Stop()
			if next := scheduler.NextRun(); next != nil {
				logger.Debug("audit retention scheduler started", "next_run", next)
			}
		}
	}

	registerHealthChecks(tel, a)

	srv := server.New(&cfg.Server, a.service, a.repo,
		server.WithLogger(logger),
		server.WithMetrics(tel.Metrics),
		server.WithTracer(tel.Tracer),
		server.WithHealthChecker(tel.Health),
		server.WithTelemetryConfig(&cfg.Telemetry),
		server.WithBuildInfo(server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate}),
	)

	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Health.Enabled {
		fmt.Fprintf(out, "✓ Health endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Health.LivenessPath)
	}
	if tel.Metrics != nil {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// startRefreshers starts the file watcher and the refresh poller. Both stop
// when ctx is cancelled.
func startRefreshers(ctx context.Context, cfg *config.Config, repo *repository.Repository, src source.Source, logger *slog.Logger) error {
	if fs, ok := src.(*source.FileSource); ok && cfg.Rules.Watch {
		watcher, err := repository.NewFileWatcher(fs.Path(), cfg.Rules.WatchDebounce, logger)
		if err != nil {
			return err
		}
		go func() {
			defer watcher.Stop()
			if err := watcher.Watch(ctx, repo.RefreshAll); err != nil {
				logger.Error("rule file watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Rules.RefreshSchedule != "" {
		poller, err := repository.NewPoller(repo, cfg.Rules.RefreshSchedule, cfg.Rules.Git.Timeout, logger)
		if err != nil {
			return err
		}
		poller.Start()
		go func() {
			<-ctx.Done()
			poller.Stop()
		}()
	}
	return nil
}

// registerHealthChecks makes the repository a critical readiness check and
// the backing stores optional ones.
func registerHealthChecks(tel *telemetry.Telemetry, a *app) {
	tel.Health.RegisterCheck("repository", a.repo.Check)

	if p, ok := a.cache.(auditstorage.Pinger); ok {
		tel.Health.RegisterOptionalCheck("cache", p.Ping)
	}
	if p, ok := a.store.(auditstorage.Pinger); ok {
		tel.Health.RegisterOptionalCheck("lifecycle_store", p.Ping)
	}
	if p, ok := a.audit.(auditstorage.Pinger); ok {
		tel.Health.RegisterOptionalCheck("audit_store", p.Ping)
	}
}
