package handler

import (
	"net/http"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/logger"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/telemetry"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger checks a backing store
type Pinger interface {
	Ping() error
}

// SystemHandler serves the health probe
type SystemHandler struct {
	BaseHandler
	db        Pinger
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(db Pinger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		startTime: time.Now(),
	}
}

// Health reports 200 when the identifier map database answers, 503 otherwise
func (h *SystemHandler) Health(c *gin.Context) {
	resp := dto.HealthResponse{
		Status:   "healthy",
		Time:     time.Now().Format(time.RFC3339),
		Database: "ok",
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
		Version:  telemetry.ServiceVersion,
	}
	if err := h.db.Ping(); err != nil {
		logger.L(c.Request.Context()).Warn("Health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Database = "error"
		c.JSON(http.StatusServiceUnavailable, dto.NewSuccessResponse(resp))
		return
	}
	h.Success(c, resp)
}
