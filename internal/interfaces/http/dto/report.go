package dto

import (
	"time"

	appintegration "github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/application/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/scheduler"
)

// RunReportResponse is a sync run as served by /reports/latest and printed by the CLI
type RunReportResponse struct {
	RunID      string            `json:"run_id"`
	Channel    string            `json:"channel"`
	DryRun     bool              `json:"dry_run"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Duration   string            `json:"duration,omitempty"`
	Attempted  int               `json:"attempted"`
	Succeeded  int               `json:"succeeded"`
	Skipped    int               `json:"skipped"`
	Warned     int               `json:"warned"`
	Failed     int               `json:"failed"`
	Cancelled  bool              `json:"cancelled"`
	Planned    PlanResponse      `json:"planned"`
	Failures   []FailureResponse `json:"failures,omitempty"`
	Records    []RecordResponse  `json:"records,omitempty"`
}

// PlanResponse is the create/update split planned before the run wrote anything
type PlanResponse struct {
	Creates int `json:"creates"`
	Updates int `json:"updates"`
}

// FailureResponse identifies a failed entity
type FailureResponse struct {
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	Code       string `json:"code"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// RecordResponse is one entity's outcome
type RecordResponse struct {
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Status     string         `json:"status"`
	SkipReason string         `json:"skip_reason,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	Error      string         `json:"error,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// NewRunReportResponse converts a run report. Per-entity records are included only
// with withRecords set.
func NewRunReportResponse(r *integration.RunReport, withRecords bool) RunReportResponse {
	resp := RunReportResponse{
		RunID:     r.RunID.String(),
		Channel:   r.Channel.String(),
		DryRun:    r.DryRun,
		StartedAt: r.StartedAt,
		Attempted: r.Attempted,
		Succeeded: r.Succeeded,
		Skipped:   r.Skipped,
		Warned:    r.Warned,
		Failed:    r.Failed,
		Cancelled: r.Cancelled,
		Planned:   PlanResponse{Creates: r.Planned.Creates, Updates: r.Planned.Updates},
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		resp.FinishedAt = &finished
		resp.Duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	}
	for _, f := range r.Failures {
		resp.Failures = append(resp.Failures, FailureResponse{
			EntityID:   f.EntityID,
			EntityKind: string(f.EntityKind),
			Code:       CodeForKind(f.Kind),
			Kind:       f.Kind.String(),
			Message:    f.Message,
		})
	}
	if withRecords {
		for _, rec := range r.Records {
			resp.Records = append(resp.Records, newRecordResponse(rec))
		}
	}
	return resp
}

func newRecordResponse(rec integration.SyncRecord) RecordResponse {
	out := RecordResponse{
		EntityID:   rec.EntityID,
		EntityKind: string(rec.EntityKind),
		Status:     string(rec.Status()),
		SkipReason: rec.SkipReason,
		ExternalID: rec.ExternalID,
		Payload:    rec.Payload,
		DurationMS: rec.Duration.Milliseconds(),
	}
	for _, w := range rec.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	if rec.Err != nil {
		out.Error = rec.Err.Error()
	}
	return out
}

// ReconcileReportResponse is a reconciliation run
type ReconcileReportResponse struct {
	Channel           string                     `json:"channel"`
	DryRun            bool                       `json:"dry_run"`
	StartedAt         time.Time                  `json:"started_at"`
	FinishedAt        *time.Time                 `json:"finished_at,omitempty"`
	Groups            []DuplicateGroupResponse   `json:"duplicate_groups"`
	DuplicateMappings []DuplicateMappingResponse `json:"duplicate_mappings"`
	MergedGroups      int                        `json:"merged_groups"`
	Redirected        int64                      `json:"redirected_mappings"`
	DeletedTerms      int                        `json:"deleted_terms"`
	PrunedMappings    int                        `json:"pruned_mappings"`
	Errors            []string                   `json:"errors,omitempty"`
}

// DuplicateGroupResponse is a set of terms sharing one normalized key
type DuplicateGroupResponse struct {
	Kind     string   `json:"kind"`
	ParentID string   `json:"parent_id,omitempty"`
	Key      string   `json:"key"`
	Survivor string   `json:"survivor"`
	Losers   []string `json:"losers"`
}

// DuplicateMappingResponse is a set of entities mapped to one external object
type DuplicateMappingResponse struct {
	Collection string   `json:"collection"`
	ExternalID string   `json:"external_id"`
	EntityIDs  []string `json:"entity_ids"`
}

// NewReconcileReportResponse converts a reconciliation report
func NewReconcileReportResponse(r *appintegration.ReconcileReport) ReconcileReportResponse {
	resp := ReconcileReportResponse{
		Channel:           r.Channel.String(),
		DryRun:            r.DryRun,
		StartedAt:         r.StartedAt,
		Groups:            make([]DuplicateGroupResponse, 0, len(r.Groups)),
		DuplicateMappings: make([]DuplicateMappingResponse, 0, len(r.DuplicateMappings)),
		MergedGroups:      r.MergedGroups,
		Redirected:        r.Redirected,
		DeletedTerms:      r.DeletedTerms,
		PrunedMappings:    r.PrunedMappings,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		resp.FinishedAt = &finished
	}
	for _, g := range r.Groups {
		losers := make([]string, 0, len(g.Losers))
		for _, l := range g.Losers {
			losers = append(losers, l.ExternalID)
		}
		resp.Groups = append(resp.Groups, DuplicateGroupResponse{
			Kind:     string(g.Kind),
			ParentID: g.ParentID,
			Key:      g.Key,
			Survivor: g.Survivor.ExternalID,
			Losers:   losers,
		})
	}
	for _, d := range r.DuplicateMappings {
		ids := make([]string, 0, len(d.Mappings))
		for _, m := range d.Mappings {
			ids = append(ids, m.EntityID)
		}
		resp.DuplicateMappings = append(resp.DuplicateMappings, DuplicateMappingResponse{
			Collection: d.Collection,
			ExternalID: d.ExternalID,
			EntityIDs:  ids,
		})
	}
	for _, err := range r.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}
	return resp
}

// LatestReportsResponse holds the latest runs of one channel
type LatestReportsResponse struct {
	Channel   string                   `json:"channel"`
	Sync      *RunReportResponse       `json:"sync,omitempty"`
	Reconcile *ReconcileReportResponse `json:"reconcile,omitempty"`
}

// JobResponse is a scheduled job
type JobResponse struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Channel     string     `json:"channel"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
}

// NewJobResponse converts a scheduler job
func NewJobResponse(j scheduler.Job) JobResponse {
	return JobResponse{
		ID:          j.ID.String(),
		Kind:        string(j.Kind),
		Channel:     j.Channel.String(),
		Status:      string(j.Status),
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		RetryCount:  j.RetryCount,
	}
}

// TriggerJobRequest asks the scheduler for an immediate run
type TriggerJobRequest struct {
	Kind    string `json:"kind" binding:"required,oneof=sync reconcile"`
	Channel string `json:"channel" binding:"required"`
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
	Version  string `json:"version"`
}
