package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/internal/config"
	apperrors "github.com/3leaps/seqsubmit/internal/errors"
	"github.com/3leaps/seqsubmit/internal/observability"
	"github.com/3leaps/seqsubmit/internal/server"
	"github.com/3leaps/seqsubmit/internal/server/handlers"
	"github.com/3leaps/seqsubmit/pkg/jobstore"
	"github.com/3leaps/seqsubmit/pkg/scheduler"
)

var (
	serveHost     string
	servePort     int
	serveFollower bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job manager",
	Long: `Run the job manager: reset interrupted jobs, then poll for projects awaiting
submission and run their jobs. An ops server exposes health checks, version
and metrics.

A follower (--follower or scheduler.enabled=false) shares the store but never
resets or launches jobs.

Examples:
  seqsubmit serve
  seqsubmit serve --port 8081 --follower`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Ops server host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Ops server port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveFollower, "follower", false, "Share the store without running jobs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		setOverride(overrides, "server.host", serveHost)
	}
	if cmd.Flags().Changed("port") {
		setOverride(overrides, "server.port", servePort)
	}
	if serveFollower {
		setOverride(overrides, "scheduler.enabled", false)
	}

	cfg, err := loadConfig(cmd.Context(), overrides)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(apperrors.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	var telemetry *observability.Telemetry
	if cfg.Metrics.Enabled {
		telemetry, err = observability.InitTelemetry()
		if err != nil {
			return exitError(apperrors.ExitFailure, "Failed to initialize telemetry", err)
		}
		metrics = telemetry.Metrics
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return exitError(apperrors.ExitFileWriteError, "Failed to open job store", err)
	}
	defer func() { _ = store.Close() }()

	projects, err := openProjects(ctx, cfg)
	if err != nil {
		return exitError(apperrors.ExitExternalServiceUnavailable, "Failed to open project repository", err)
	}
	defer func() { _ = projects.Close() }()

	pipe, err := buildPipeline(ctx, cfg, store, projects, logger, metrics)
	if err != nil {
		return exitError(apperrors.ExitInvalidArgument, "Failed to configure pipeline", err)
	}

	schedOpts := []scheduler.Option{
		scheduler.WithConfig(schedulerConfig(cfg)),
		scheduler.WithLogger(logger.Named("scheduler")),
	}
	if metrics != nil {
		schedOpts = append(schedOpts, scheduler.WithMetrics(metrics))
	}
	sched := scheduler.New(store, projects, pipe, schedOpts...)

	if cfg.Health.Enabled {
		registerHealthCheckers(handlers.InitHealthManager(versionInfo.Version), cfg, store, sched)
	}

	srvOpts := []server.Option{
		server.WithLogger(logger.Named("http")),
		server.WithPprof(cfg.Debug.Enabled && cfg.Debug.PprofEnabled),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	}
	if telemetry != nil {
		srvOpts = append(srvOpts, server.WithMetricsHandler(telemetry.Handler()))
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, srvOpts...)

	errCh := make(chan error, 3)
	go func() { errCh <- srv.Start() }()

	var metricsSrv *http.Server
	if telemetry != nil && cfg.Metrics.Port > 0 && cfg.Metrics.Port != cfg.Server.Port {
		metricsSrv = startMetricsListener(cfg, telemetry, logger, errCh)
	}

	go func() {
		if err := sched.Start(ctx); err != nil {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	logger.Info("Job manager started",
		zap.String("version", versionInfo.Version),
		zap.Bool("leader", cfg.Scheduler.Enabled),
		zap.Duration("interval", cfg.Scheduler.Interval),
		zap.Int("max_running", cfg.Scheduler.MaxRunning),
		zap.String("ops_addr", srv.Addr()))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("Job manager failed", zap.Error(serveErr))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Ops server shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics listener shutdown", zap.Error(err))
		}
	}

	waitForJobs(shutdownCtx, sched, logger)

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown", zap.Error(err))
		}
	}

	if serveErr != nil {
		return exitError(apperrors.ExitFailure, "Job manager failed", serveErr)
	}
	logger.Info("Job manager stopped")
	return nil
}

// waitForJobs waits for in-flight jobs until ctx expires. Jobs still running
// afterwards are marked STOPPED by the next leader's reset.
func waitForJobs(ctx context.Context, sched *scheduler.Scheduler, logger *zap.Logger) {
	n := sched.InFlight()
	if n == 0 {
		return
	}
	logger.Info("Waiting for running jobs", zap.Int("jobs", n))

	done := make(chan struct{})
	go func() {
		sched.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Jobs still running at shutdown", zap.Int("jobs", sched.InFlight()))
	}
}

func startMetricsListener(cfg *config.Config, t *observability.Telemetry, logger *zap.Logger, errCh chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", t.Handler())
	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Metrics.Port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("Metrics listener", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics listener: %w", err)
		}
	}()
	return srv
}

func registerHealthCheckers(m *handlers.HealthManager, cfg *config.Config, store *jobstore.Store, sched *scheduler.Scheduler) {
	m.RegisterChecker("store", handlers.HealthCheckerFunc(store.Ping))
	if cfg.Metrics.Enabled {
		m.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	if id := GetAppIdentity(); id != nil {
		m.RegisterChecker("identity", identityHealthChecker{
			binaryName: id.BinaryName,
			envPrefix:  id.EnvPrefix,
			configName: id.ConfigName,
		})
	}
	if cfg.Scheduler.Enabled {
		m.RegisterChecker("scheduler", schedulerHealthChecker{
			sched:  sched,
			maxAge: schedulerStaleAfter(cfg.Scheduler),
		})
	}
}

type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(context.Context) error {
	return observability.CheckTelemetry()
}

type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("missing binary name")
	case c.envPrefix == "":
		return errors.New("missing env prefix")
	case c.configName == "":
		return errors.New("missing config name")
	}
	return nil
}

// tickSource is the part of the scheduler the health check reads.
type tickSource interface {
	LastTick() time.Time
}

// schedulerHealthChecker fails when the poll loop has not ticked recently.
// Before the first tick it reports healthy.
type schedulerHealthChecker struct {
	sched  tickSource
	maxAge time.Duration
	now    func() time.Time
}

func (c schedulerHealthChecker) CheckHealth(context.Context) error {
	last := c.sched.LastTick()
	if last.IsZero() {
		return nil
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if age := now().Sub(last); age > c.maxAge {
		return fmt.Errorf("scheduler last ticked %s ago", age.Round(time.Second))
	}
	return nil
}

func schedulerStaleAfter(sc config.SchedulerConfig) time.Duration {
	d := 3 * sc.Interval
	if d < time.Minute {
		d = time.Minute
	}
	return d
}
