package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncOutcome is what happened to one entity on one channel
type SyncOutcome string

const (
	SyncOutcomeCreated SyncOutcome = "created"
	SyncOutcomeUpdated SyncOutcome = "updated"
	SyncOutcomeSkipped SyncOutcome = "skipped"
	SyncOutcomeFailed  SyncOutcome = "failed"
)

// SyncStatus is the reported status of a record
type SyncStatus string

const (
	SyncStatusCreated SyncStatus = "created"
	SyncStatusUpdated SyncStatus = "updated"
	SyncStatusSkipped SyncStatus = "skipped"
	SyncStatusWarned  SyncStatus = "warned"
	SyncStatusFailed  SyncStatus = "failed"
)

// SkipReasonUnchanged marks a record skipped because the content hash matched
const SkipReasonUnchanged = "unchanged"

// Warning is a non-fatal condition raised while syncing an entity
type Warning struct {
	Kind     ErrorKind
	Relation RelationName
	TargetID string
	Message  string
}

// String returns a human-readable warning
func (w Warning) String() string {
	if w.Relation != "" {
		return fmt.Sprintf("%s: %s %s: %s", w.Kind, w.Relation, w.TargetID, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// UnresolvedRelationWarning creates the warning for a relation without an external ID
func UnresolvedRelationWarning(r Relation) Warning {
	return Warning{
		Kind:     ErrorKindRelationUnresolved,
		Relation: r.Name,
		TargetID: r.TargetID,
		Message:  "relation not yet synced, reference omitted",
	}
}

// SyncRecord captures the outcome of one entity on one channel during one run.
// It is never persisted.
type SyncRecord struct {
	EntityID   string
	EntityKind EntityKind
	Channel    ChannelKey
	Outcome    SyncOutcome
	SkipReason string
	ExternalID string
	Warnings   []Warning
	Err        error
	ErrorKind  ErrorKind
	DryRun     bool
	// Payload is kept for dry runs so the would-be request can be reported
	Payload    map[string]any
	Duration   time.Duration
}

// Fail marks the record failed with err
func (r *SyncRecord) Fail(err error) {
	r.Outcome = SyncOutcomeFailed
	r.Err = err
	r.ErrorKind = KindOf(err)
}

// Warn appends a warning
func (r *SyncRecord) Warn(w Warning) {
	r.Warnings = append(r.Warnings, w)
}

// Status returns the reported status. A successful create or update that carries
// warnings is reported as warned.
func (r *SyncRecord) Status() SyncStatus {
	switch r.Outcome {
	case SyncOutcomeFailed:
		return SyncStatusFailed
	case SyncOutcomeSkipped:
		return SyncStatusSkipped
	}
	if len(r.Warnings) > 0 {
		return SyncStatusWarned
	}
	if r.Outcome == SyncOutcomeCreated {
		return SyncStatusCreated
	}
	return SyncStatusUpdated
}

// ---------------------------------------------------------------------------
// RunReport
// ---------------------------------------------------------------------------

// Failure identifies a failed entity so the failed subset can be re-run
type Failure struct {
	EntityID   string
	EntityKind EntityKind
	Kind       ErrorKind
	Message    string
}

// RunReport aggregates the records of one orchestration run
type RunReport struct {
	RunID      uuid.UUID
	Channel    ChannelKey
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Attempted  int
	Succeeded  int
	Skipped    int
	Warned     int
	Failed     int
	Cancelled  bool
	// Planned is the create/update split decided from the identifier map before any
	// channel call
	Planned    SyncPlan
	Failures   []Failure
	Records    []SyncRecord
}

// SyncPlan counts the entities of a run that have no mapping yet (creates) and those
// that do (updates, which may still be skipped as unchanged)
type SyncPlan struct {
	Creates int
	Updates int
}

// NewRunReport creates an empty report for a channel
func NewRunReport(channel ChannelKey, dryRun bool) *RunReport {
	return &RunReport{
		RunID:     uuid.New(),
		Channel:   channel,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
}

// Add folds one record into the counters
func (r *RunReport) Add(rec SyncRecord) {
	r.Attempted++
	switch rec.Status() {
	case SyncStatusFailed:
		r.Failed++
		msg := ""
		if rec.Err != nil {
			msg = rec.Err.Error()
		}
		r.Failures = append(r.Failures, Failure{
			EntityID:   rec.EntityID,
			EntityKind: rec.EntityKind,
			Kind:       rec.ErrorKind,
			Message:    msg,
		})
	case SyncStatusSkipped:
		r.Skipped++
	case SyncStatusWarned:
		r.Warned++
	default:
		r.Succeeded++
	}
	r.Records = append(r.Records, rec)
}

// Merge folds another report's records into r
func (r *RunReport) Merge(other *RunReport) {
	for _, rec := range other.Records {
		r.Add(rec)
	}
	r.Planned.Creates += other.Planned.Creates
	r.Planned.Updates += other.Planned.Updates
	r.Cancelled = r.Cancelled || other.Cancelled
}

// Finish stamps the report end time
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
}

// HasFailures returns true if any entity failed or the run was cancelled
func (r *RunReport) HasFailures() bool {
	return r.Failed > 0 || r.Cancelled
}

// FailedIDs returns the failed entity IDs, for re-running only the failed subset
func (r *RunReport) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.EntityID)
	}
	return ids
}
