package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	appintegration "github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/application/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/shared"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/scheduler"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ReportSource exposes the latest run reports per channel
type ReportSource interface {
	LatestSync(channel integration.ChannelKey) (*integration.RunReport, bool)
	LatestReconcile(channel integration.ChannelKey) (*appintegration.ReconcileReport, bool)
	Channels() []integration.ChannelKey
}

// JobScheduler exposes the serve mode scheduler
type JobScheduler interface {
	Trigger(kind scheduler.JobKind, channel integration.ChannelKey) (scheduler.Job, error)
	GetJobHistory(limit int) []scheduler.Job
}

// ReportHandler serves run reports and scheduled jobs
type ReportHandler struct {
	BaseHandler
	reports   ReportSource
	scheduler JobScheduler
}

// NewReportHandler creates a ReportHandler. sched may be nil when scheduling is off.
func NewReportHandler(reports ReportSource, sched JobScheduler) *ReportHandler {
	return &ReportHandler{reports: reports, scheduler: sched}
}

// Latest returns the latest sync and reconciliation of every channel, or of the
// channel named by ?channel. ?records=true includes per-entity records.
func (h *ReportHandler) Latest(c *gin.Context) {
	withRecords, _ := strconv.ParseBool(c.Query("records"))

	channels := h.reports.Channels()
	if q := strings.TrimSpace(c.Query("channel")); q != "" {
		channels = []integration.ChannelKey{integration.ChannelKey(strings.ToLower(q))}
	}

	out := make([]dto.LatestReportsResponse, 0, len(channels))
	for _, ch := range channels {
		entry := dto.LatestReportsResponse{Channel: ch.String()}
		if r, ok := h.reports.LatestSync(ch); ok {
			resp := dto.NewRunReportResponse(r, withRecords)
			entry.Sync = &resp
		}
		if r, ok := h.reports.LatestReconcile(ch); ok {
			resp := dto.NewReconcileReportResponse(r)
			entry.Reconcile = &resp
		}
		if entry.Sync == nil && entry.Reconcile == nil {
			continue
		}
		out = append(out, entry)
	}

	if c.Query("channel") != "" && len(out) == 0 {
		h.HandleError(c, fmt.Errorf("channel %s: %w", c.Query("channel"), shared.ErrNotFound))
		return
	}
	h.Success(c, out)
}

// Jobs lists finished scheduled jobs, most recent first. ?limit caps the list.
func (h *ReportHandler) Jobs(c *gin.Context) {
	if h.scheduler == nil {
		h.HandleError(c, shared.ErrUnavailable)
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs := h.scheduler.GetJobHistory(limit)
	out := make([]dto.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, dto.NewJobResponse(j))
	}
	h.Success(c, out)
}

// TriggerJob submits an immediate sync or reconciliation of one channel
func (h *ReportHandler) TriggerJob(c *gin.Context) {
	if h.scheduler == nil {
		h.HandleError(c, shared.ErrUnavailable)
		return
	}
	var req dto.TriggerJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	kind := scheduler.JobKindSync
	if req.Kind == "reconcile" {
		kind = scheduler.JobKindReconcile
	}
	job, err := h.scheduler.Trigger(kind, integration.ChannelKey(strings.ToLower(req.Channel)))
	switch {
	case errors.Is(err, scheduler.ErrUnknownChannel):
		h.NotFound(c, err.Error())
	case errors.Is(err, scheduler.ErrJobAlreadyInProgress):
		h.Error(c, http.StatusConflict, dto.ErrCodeConflict, err.Error())
	case errors.Is(err, scheduler.ErrSchedulerNotRunning), errors.Is(err, scheduler.ErrJobQueueFull):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, err.Error())
	case err != nil:
		h.HandleError(c, err)
	default:
		h.Accepted(c, dto.NewJobResponse(job))
	}
}
