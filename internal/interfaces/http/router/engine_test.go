package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appintegration "github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/application/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/metrics"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type okPinger struct{}

func (okPinger) Ping() error { return nil }

func TestNewEngine(t *testing.T) {
	history := appintegration.NewRunHistory()
	report := integration.NewRunReport("tienda", false)
	report.Finish()
	history.RecordSync(report)

	runMetrics := metrics.NewRunMetrics("", false)
	runMetrics.ObserveSync(report)

	tracing := middleware.DefaultTracingConfig()
	tracing.Enabled = false

	engine := NewEngine(Deps{
		Logger:  zaptest.NewLogger(t),
		DB:      okPinger{},
		Reports: history,
		Metrics: runMetrics.Handler(),
		Tracing: tracing,
	})

	tests := []struct {
		method   string
		path     string
		status   int
		contains string
	}{
		{http.MethodGet, "/health", http.StatusOK, `"healthy"`},
		{http.MethodGet, "/metrics", http.StatusOK, "catalogsync_runs_total"},
		{http.MethodGet, "/reports/latest", http.StatusOK, report.RunID.String()},
		{http.MethodGet, "/jobs", http.StatusServiceUnavailable, "ERR_UNAVAILABLE"},
		{http.MethodPost, "/jobs", http.StatusServiceUnavailable, "ERR_UNAVAILABLE"},
		{http.MethodGet, "/api/v1/health", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader("")))

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestNewEngine_RecoversFromPanic(t *testing.T) {
	tracing := middleware.DefaultTracingConfig()
	tracing.Enabled = false
	engine := NewEngine(Deps{
		Logger:  zaptest.NewLogger(t),
		DB:      okPinger{},
		Reports: appintegration.NewRunHistory(),
		Tracing: tracing,
	})
	engine.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
