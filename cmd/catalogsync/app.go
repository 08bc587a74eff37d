package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appintegration "github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/application/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/cache"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/channel"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/config"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/contentstore"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/logger"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/metrics"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/migration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/persistence"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/telemetry"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// app holds the wiring shared by every subcommand that talks to channels
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	channels []integration.Channel

	db       *persistence.Database
	mappings *persistence.GormIdentifierMap
	terms    integration.TermCache
	source   *contentstore.Client
	registry *channel.Registry
	metrics  *metrics.RunMetrics
	history  *appintegration.RunHistory

	closers []func(ctx context.Context) error
}

// appOptions says what a subcommand needs from the wiring
type appOptions struct {
	// longRunning keeps process metrics registered for the status server
	longRunning bool
	// readsSource opens the content store; only commands that fetch entities set it
	readsSource bool
}

// newApp validates the targeted channels and opens every backend. Configuration
// problems surface as *integration.ConfigurationError before anything is opened.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, channelKeys []string, opts appOptions) (a *app, err error) {
	channels, err := cfg.ChannelsFor(channelKeys)
	if err != nil {
		return nil, err
	}
	if opts.readsSource {
		if err := cfg.ValidateContentStore(); err != nil {
			return nil, err
		}
	}

	a = &app{
		cfg:      cfg,
		log:      log,
		channels: channels,
		metrics:  metrics.NewRunMetrics(cfg.Metrics.Namespace, opts.longRunning),
		history:  appintegration.NewRunHistory(),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	observer, err := a.initTelemetry(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.initDatabase(); err != nil {
		return nil, err
	}

	factory := cache.NewTermCacheFactory(cfg.Redis, persistence.NewGormTermCache(a.db.DB), cache.WithLogger(log))
	if a.terms, err = factory.Create(ctx); err != nil {
		return nil, err
	}

	policy := channel.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Base:        cfg.Retry.BackoffBase,
		Jitter:      cfg.Retry.Jitter,
	}
	if a.registry, err = channel.BuildRegistry(channels, policy, log, observer); err != nil {
		return nil, err
	}

	if opts.readsSource {
		if a.source, err = newContentStore(cfg, policy, log, observer); err != nil {
			return nil, err
		}
	}

	log.Info("catalogsync ready",
		zap.Strings("channels", keysOf(channels)),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("content_store", a.source != nil),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)
	return a, nil
}

// newContentStore builds the content store client on the shared retry policy
func newContentStore(cfg *config.Config, policy channel.RetryPolicy, log *zap.Logger, observer channel.Observer) (*contentstore.Client, error) {
	api, err := channel.NewClient(channel.Config{
		Key:     "contentstore",
		BaseURL: cfg.ContentStore.BaseURL,
		Credentials: integration.Credentials{
			Scheme: integration.AuthSchemeBearer,
			Token:  cfg.ContentStore.Token,
		},
		Timeout: cfg.ContentStore.Timeout,
	}, channel.WithRetryPolicy(policy), channel.WithLogger(log), channel.WithObserver(observer))
	if err != nil {
		return nil, err
	}
	return contentstore.NewClient(api, contentstore.DefaultSchemas(), cfg.ContentStore.PageSize, log), nil
}

// initTelemetry installs the tracer and meter providers and returns the channel
// observer
func (a *app) initTelemetry(ctx context.Context) (channel.Observer, error) {
	tc := a.cfg.Telemetry
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.Enabled && tc.MetricsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.MetricsInterval,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, mp.Shutdown)

	return telemetry.NewChannelMetrics(mp.Meter("catalogsync"))
}

// initDatabase opens the identifier map and brings its schema up to date. sqlite is
// auto-migrated; postgres applies the embedded SQL migrations when auto_migrate is set
// and otherwise expects cmd/migrate to have run.
func (a *app) initDatabase() error {
	dbCfg := &a.cfg.Database
	gormLog := logger.NewGormLogger(a.log, logger.MapGormLogLevel(a.cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(dbCfg, gormLog)
	if err != nil {
		return err
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	if a.cfg.Telemetry.Enabled && a.cfg.Telemetry.DBTraceEnabled {
		tracingCfg := telemetry.DefaultDBTracingConfig()
		tracingCfg.Enabled = true
		if dbCfg.Driver == "postgres" {
			tracingCfg.DBSystem = "postgresql"
		}
		if err := telemetry.NewDBTracingPlugin(tracingCfg, a.log).Register(db.DB); err != nil {
			return err
		}
	}

	switch {
	case dbCfg.Driver == "sqlite":
		if err := db.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate identifier map: %w", err)
		}
	case dbCfg.AutoMigrate:
		if err := migratePostgres(dbCfg.DSN(), a.log); err != nil {
			return err
		}
	}
	a.mappings = persistence.NewGormIdentifierMap(db.DB)
	return nil
}

// migratePostgres applies the embedded migrations over a dedicated connection, since
// closing the migrator closes its connection
func migratePostgres(dsn string, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	m, err := migration.New(sqlDB, log)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() {
		_ = m.Close()
	}()
	return m.Up()
}

// resolver returns a fresh taxonomy resolver. A run never shares its memo with another.
func (a *app) resolver(dryRun bool) *appintegration.TaxonomyResolver {
	return appintegration.NewTaxonomyResolver(a.log,
		appintegration.WithTermCache(a.terms),
		appintegration.WithReadOnly(dryRun),
	)
}

// orchestrator returns an orchestrator with its own resolver
func (a *app) orchestrator(dryRun bool) *appintegration.Orchestrator {
	opts := []appintegration.OrchestratorOption{
		appintegration.WithConcurrency(a.cfg.Sync.Concurrency),
		appintegration.WithDryRun(dryRun),
	}
	if !dryRun && a.source != nil {
		opts = append(opts, appintegration.WithMetadataPublisher(a.source))
	}
	return appintegration.NewOrchestrator(a.mappings, a.resolver(dryRun), a.log, opts...)
}

func (a *app) reconciler() *appintegration.Reconciler {
	return appintegration.NewReconciler(a.mappings, a.terms, a.log)
}

// fetchOptions returns the entity selection of a run
func (a *app) fetchOptions() (appintegration.FetchOptions, error) {
	kinds, err := a.cfg.Kinds()
	if err != nil {
		return appintegration.FetchOptions{}, err
	}
	return appintegration.FetchOptions{Kinds: kinds, Limit: a.cfg.Sync.Limit}, nil
}

// recordSync stores a finished sync for metrics and the status surface
func (a *app) recordSync(r *integration.RunReport) {
	a.metrics.ObserveSync(r)
	a.history.RecordSync(r)
}

// recordReconcile stores a finished reconciliation for metrics and the status surface
func (a *app) recordReconcile(r *appintegration.ReconcileReport) {
	a.metrics.ObserveReconcile(metrics.ReconcileSummary{
		Channel:           r.Channel,
		DuplicateGroups:   len(r.Groups),
		DuplicateMappings: len(r.DuplicateMappings),
		MergedGroups:      r.MergedGroups,
		Errors:            len(r.Errors),
	})
	a.history.RecordReconcile(r)
}

// writeMetricsFile exports run metrics when a metrics file is configured
func (a *app) writeMetricsFile() {
	path := a.cfg.Sync.MetricsFile
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.log.Warn("failed to write metrics file", zap.String("path", path), zap.Error(err))
		return
	}
	a.log.Debug("metrics file written", zap.String("path", path))
}

// close releases backends in reverse order of opening
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	if closer, ok := a.terms.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("error during shutdown", zap.Error(err))
	}
}

func keysOf(channels []integration.Channel) []string {
	keys := make([]string, 0, len(channels))
	for _, ch := range channels {
		keys = append(keys, ch.Key.String())
	}
	return keys
}
