package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	appintegration "github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/application/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/config"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/scheduler"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/interfaces/http/middleware"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// jobExecutor runs scheduled jobs against the app
type jobExecutor struct {
	app    *app
	dryRun bool
}

// Execute runs one sync or report-only reconciliation. A sync with failed entities
// fails the job so it is retried; unchanged entities are skipped on the retry.
func (e *jobExecutor) Execute(ctx context.Context, job *scheduler.Job) error {
	gw, err := e.app.registry.Get(job.Channel)
	if err != nil {
		return err
	}

	switch job.Kind {
	case scheduler.JobKindSync:
		fetch, err := e.app.fetchOptions()
		if err != nil {
			return err
		}
		report, err := e.app.orchestrator(e.dryRun).SyncAll(ctx, e.app.source, gw, fetch)
		if err != nil {
			return fmt.Errorf("failed to fetch entities: %w", err)
		}
		e.app.recordSync(report)
		if report.HasFailures() {
			return fmt.Errorf("%d of %d entities failed (cancelled=%t)", report.Failed, report.Attempted, report.Cancelled)
		}
		return nil

	case scheduler.JobKindReconcile:
		report, err := e.app.reconciler().Run(ctx, gw, appintegration.ReconcileOptions{DryRun: true})
		if err != nil {
			return err
		}
		e.app.recordReconcile(report)
		if report.HasErrors() {
			return errors.Join(report.Errors...)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", scheduler.ErrUnknownJobKind, job.Kind)
	}
}

// runServe runs the scheduler and the status server until ctx is cancelled
func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger, opts options) error {
	// Only scheduled syncs read the content store
	a, err := newApp(ctx, cfg, log, opts.channels, appOptions{longRunning: true, readsSource: cfg.Scheduler.Enabled})
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tracing := middleware.DefaultTracingConfig()
	tracing.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.ServiceName != "" {
		tracing.ServiceName = cfg.Telemetry.ServiceName
	}
	deps := router.Deps{
		Logger:  log,
		DB:      a.db,
		Reports: a.history,
		Metrics: a.metrics.Handler(),
		Tracing: tracing,
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.NewScheduler(schedulerConfig(cfg, a.channels), &jobExecutor{app: a, dryRun: opts.dryRun}, log)
		if err != nil {
			return integration.NewConfigurationError("", "scheduler", err.Error())
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		deps.Scheduler = sched
	} else {
		log.Info("Scheduler disabled, serving status only")
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router.NewEngine(deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting status server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case runErr = <-serveErr:
		log.Error("Status server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	log.Info("Server exited gracefully")
	return runErr
}

// schedulerConfig maps the scheduler settings onto the targeted channels
func schedulerConfig(cfg *config.Config, channels []integration.Channel) scheduler.Config {
	sc := scheduler.DefaultConfig()
	sc.Enabled = cfg.Scheduler.Enabled
	sc.SyncInterval = cfg.Scheduler.SyncInterval
	sc.ReconcileInterval = cfg.Scheduler.ReconcileInterval
	sc.RunOnStart = cfg.Scheduler.RunOnStart
	if cfg.Scheduler.JobTimeout > 0 {
		sc.JobTimeout = cfg.Scheduler.JobTimeout
	}
	sc.Channels = make([]integration.ChannelKey, 0, len(channels))
	for _, ch := range channels {
		sc.Channels = append(sc.Channels, ch.Key)
	}
	return sc
}
