// Package metrics exposes sync and reconciliation run outcomes to Prometheus,
// scraped in serve mode or written as a node_exporter textfile after a CLI run.
package metrics

import (
	"net/http"
	"sync"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "catalogsync"

// RunDurationBuckets are bucket boundaries for whole runs (seconds)
var RunDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600}

// ReconcileSummary is what a reconciliation run reports to metrics
type ReconcileSummary struct {
	Channel           integration.ChannelKey
	DuplicateGroups   int
	DuplicateMappings int
	MergedGroups      int
	Errors            int
}

// RunMetrics holds the run collectors on a private registry.
// Safe for concurrent use.
type RunMetrics struct {
	mu       sync.Mutex
	registry *prometheus.Registry

	entities          *prometheus.CounterVec
	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	lastRunTimestamp  *prometheus.GaugeVec
	lastRunFailed     *prometheus.GaugeVec
	duplicateGroups   *prometheus.GaugeVec
	duplicateMappings *prometheus.GaugeVec
	mergedGroups      *prometheus.CounterVec
}

// NewRunMetrics creates and registers the run collectors. With withRuntime set, Go
// runtime and process collectors are registered too, as a long-running server wants.
func NewRunMetrics(namespace string, withRuntime bool) *RunMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &RunMetrics{registry: prometheus.NewRegistry()}

	m.entities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entities_total",
		Help:      "Entities processed by sync runs, by reported status.",
	}, []string{"channel", "status"})

	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Sync runs, by result (ok, failed, cancelled).",
	}, []string{"channel", "result", "dry_run"})

	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of sync runs.",
		Buckets:   RunDurationBuckets,
	}, []string{"channel"})

	m.lastRunTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last sync run finished.",
	}, []string{"channel"})

	m.lastRunFailed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_failed_entities",
		Help:      "Entities that failed in the last sync run.",
	}, []string{"channel"})

	m.duplicateGroups = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "duplicate_term_groups",
		Help:      "Duplicate taxonomy term groups found by the last reconciliation.",
	}, []string{"channel"})

	m.duplicateMappings = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "duplicate_mapping_groups",
		Help:      "Identifier map rows sharing one external object, by last reconciliation.",
	}, []string{"channel"})

	m.mergedGroups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merged_term_groups_total",
		Help:      "Duplicate term groups merged by reconciliation.",
	}, []string{"channel"})

	m.registry.MustRegister(
		m.entities,
		m.runs,
		m.runDuration,
		m.lastRunTimestamp,
		m.lastRunFailed,
		m.duplicateGroups,
		m.duplicateMappings,
		m.mergedGroups,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// ObserveSync folds a finished sync report into the collectors
func (m *RunMetrics) ObserveSync(r *integration.RunReport) {
	if r == nil {
		return
	}
	ch := r.Channel.String()

	counts := map[integration.SyncStatus]int{
		integration.SyncStatusCreated: 0,
		integration.SyncStatusUpdated: 0,
		integration.SyncStatusSkipped: r.Skipped,
		integration.SyncStatusWarned:  r.Warned,
		integration.SyncStatusFailed:  r.Failed,
	}
	for _, rec := range r.Records {
		switch s := rec.Status(); s {
		case integration.SyncStatusCreated, integration.SyncStatusUpdated:
			counts[s]++
		}
	}
	for status, n := range counts {
		m.entities.WithLabelValues(ch, string(status)).Add(float64(n))
	}

	result := "ok"
	switch {
	case r.Cancelled:
		result = "cancelled"
	case r.Failed > 0:
		result = "failed"
	}
	dryRun := "false"
	if r.DryRun {
		dryRun = "true"
	}
	m.runs.WithLabelValues(ch, result, dryRun).Inc()

	if !r.FinishedAt.IsZero() {
		m.runDuration.WithLabelValues(ch).Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
		m.lastRunTimestamp.WithLabelValues(ch).Set(float64(r.FinishedAt.Unix()))
	}
	m.lastRunFailed.WithLabelValues(ch).Set(float64(r.Failed))
}

// ObserveReconcile records a reconciliation summary
func (m *RunMetrics) ObserveReconcile(s ReconcileSummary) {
	ch := s.Channel.String()
	m.duplicateGroups.WithLabelValues(ch).Set(float64(s.DuplicateGroups))
	m.duplicateMappings.WithLabelValues(ch).Set(float64(s.DuplicateMappings))
	m.mergedGroups.WithLabelValues(ch).Add(float64(s.MergedGroups))
}

// Handler serves the registry in the Prometheus exposition format
func (m *RunMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the registry atomically to path for the node_exporter
// textfile collector
func (m *RunMetrics) WriteTextfile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return prometheus.WriteToTextfile(path, m.registry)
}

// Registry returns the underlying registry
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}
