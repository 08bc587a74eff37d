package router

import (
	"net/http"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/logger"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/interfaces/http/handler"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are what the status surface serves
type Deps struct {
	Logger  *zap.Logger
	DB      handler.Pinger
	Reports handler.ReportSource
	// Scheduler is nil when scheduling is disabled. Do not pass a typed nil.
	Scheduler handler.JobScheduler
	Metrics   http.Handler
	Tracing   middleware.TracingConfig
}

// NewEngine builds the gin engine with the middleware chain and the routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /reports/latest
//	GET  /jobs
//	POST /jobs
func NewEngine(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(deps.Tracing),
		middleware.EnrichSpan(),
		middleware.Secure(),
	)

	system := handler.NewSystemHandler(deps.DB)
	reports := handler.NewReportHandler(deps.Reports, deps.Scheduler)

	root := NewDomainGroup("system", "")
	root.GET("/health", system.Health)
	if deps.Metrics != nil {
		root.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	reportGroup := NewDomainGroup("reports", "/reports")
	reportGroup.GET("/latest", reports.Latest)

	jobs := NewDomainGroup("jobs", "/jobs")
	jobs.GET("", reports.Jobs).
		POST("", reports.TriggerJob)

	NewRouter(engine).
		Register(root).
		Register(reportGroup).
		Register(jobs).
		Setup()

	return engine
}
