package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds identifier map tracing configuration
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include query variables; never in production
	SlowQueryThresh time.Duration // default: 200ms
	DBSystem        string        // sqlite or postgresql
}

// DefaultDBTracingConfig returns tracing disabled with variables hidden
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "sqlite",
	}
}

// DBTracingPlugin registers otelgorm plus slow query marking on a GORM handle
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a plugin
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// Register installs otelgorm and the timing callbacks. It does nothing when disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	// After hooks must run before otelgorm ends the span
	cb := db.Callback()
	hooks := []struct {
		before interface{ Register(string, func(*gorm.DB)) error }
		after  interface{ Register(string, func(*gorm.DB)) error }
		name   string
	}{
		{cb.Create().Before("gorm:create"), cb.Create().After("gorm:create").Before("otel:after:create"), "create"},
		{cb.Query().Before("gorm:query"), cb.Query().After("gorm:query").Before("otel:after:select"), "query"},
		{cb.Update().Before("gorm:update"), cb.Update().After("gorm:update").Before("otel:after:update"), "update"},
		{cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete").Before("otel:after:delete"), "delete"},
		{cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw").Before("otel:after:raw"), "raw"},
	}
	for _, h := range hooks {
		if err := h.before.Register("catalogsync:before_"+h.name, p.before); err != nil {
			return fmt.Errorf("registering %s timing: %w", h.name, err)
		}
		if err := h.after.Register("catalogsync:after_"+h.name, p.after); err != nil {
			return fmt.Errorf("registering %s timing: %w", h.name, err)
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

type contextKey string

const queryStartTimeKey contextKey = "catalogsync_query_start"

func (p *DBTracingPlugin) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

func (p *DBTracingPlugin) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		RecordError(span, db.Error)
	}

	start, ok := ctx.Value(queryStartTimeKey).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		AddEvent(span, "slow_query_warning",
			"duration_ms", elapsed.Milliseconds(),
			"threshold_ms", p.config.SlowQueryThresh.Milliseconds(),
		)
	}
}
