package integration

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/logger"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker pool bounds
const (
	DefaultConcurrency = 4
	MaxConcurrency     = 32
)

// Orchestrator syncs canonical entities to channels and commits the resulting
// external IDs into the identifier map
type Orchestrator struct {
	mappings    integration.IdentifierMap
	resolver    *TaxonomyResolver
	mapper      *ChannelMapper
	publisher   integration.MetadataPublisher
	logger      *zap.Logger
	concurrency int
	dryRun      bool
	now         func() time.Time
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithConcurrency sets the worker pool size, clamped to [1, MaxConcurrency]
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.concurrency = min(max(n, 1), MaxConcurrency)
	}
}

// WithDryRun makes the orchestrator resolve and log payloads without writing
func WithDryRun(dryRun bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.dryRun = dryRun
	}
}

// WithMetadataPublisher writes sync metadata back to the content store after each
// successful sync
func WithMetadataPublisher(p integration.MetadataPublisher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithClock overrides the clock used to stamp mappings
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator over the identifier map and a per-run resolver
func NewOrchestrator(
	mappings integration.IdentifierMap,
	resolver *TaxonomyResolver,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		mappings:    mappings,
		resolver:    resolver,
		mapper:      NewChannelMapper(resolver),
		logger:      logger,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DryRun reports whether the orchestrator is in dry-run mode
func (o *Orchestrator) DryRun() bool {
	return o.dryRun
}

// ---------------------------------------------------------------------------
// Single entity
// ---------------------------------------------------------------------------

// SyncEntity syncs one entity to the gateway's channel. The identifier map is only
// written when the channel accepted the payload.
func (o *Orchestrator) SyncEntity(ctx context.Context, e *integration.CanonicalEntity, gw integration.ChannelGateway) integration.SyncRecord {
	return o.sync(ctx, e, gw, false)
}

// sync runs one entity. knownMissing is set when the batch plan already found no
// mapping, which skips the lookup.
func (o *Orchestrator) sync(ctx context.Context, e *integration.CanonicalEntity, gw integration.ChannelGateway, knownMissing bool) integration.SyncRecord {
	start := time.Now()
	ch := gw.Channel()
	rec := integration.SyncRecord{
		EntityID:   e.ID,
		EntityKind: e.Kind,
		Channel:    ch.Key,
		DryRun:     o.dryRun,
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "catalog_sync", "sync_entity",
		telemetry.WithAttribute(telemetry.SpanAttrEntityID, e.ID),
		telemetry.WithAttribute(telemetry.SpanAttrEntityKind, e.Kind.String()),
		telemetry.WithAttribute(telemetry.SpanAttrChannel, ch.Key.String()),
	)
	defer span.End()

	log := o.entityLogger(ctx, e, ch.Key)

	o.syncEntity(ctx, e, gw, knownMissing, &rec, log)
	rec.Duration = time.Since(start)

	telemetry.SetAttributes(span, telemetry.SpanAttrOutcome, string(rec.Outcome), telemetry.SpanAttrWarnings, len(rec.Warnings))
	switch rec.Outcome {
	case integration.SyncOutcomeFailed:
		telemetry.RecordError(span, rec.Err)
		log.Warn("entity sync failed",
			zap.String("error_kind", rec.ErrorKind.String()),
			zap.Error(rec.Err),
		)
	case integration.SyncOutcomeSkipped:
		telemetry.SetOK(span)
		log.Debug("entity unchanged, skipped")
	default:
		telemetry.SetOK(span)
		fields := []zap.Field{
			zap.String("outcome", string(rec.Outcome)),
			zap.String("external_id", rec.ExternalID),
			zap.Int("warnings", len(rec.Warnings)),
			zap.Duration("duration", rec.Duration),
		}
		if rec.DryRun {
			log.Info("dry run: would sync entity", append(fields, zap.Any("payload", rec.Payload))...)
		} else {
			log.Info("entity synced", fields...)
		}
	}
	return rec
}

func (o *Orchestrator) syncEntity(
	ctx context.Context,
	e *integration.CanonicalEntity,
	gw integration.ChannelGateway,
	knownMissing bool,
	rec *integration.SyncRecord,
	log *zap.Logger,
) {
	ch := gw.Channel()

	if err := e.Validate(); err != nil {
		rec.Fail(err)
		return
	}
	collection, ok := ch.CollectionFor(e.Kind)
	if !ok {
		rec.Fail(integration.NewConfigurationError(ch.Key, "collections."+e.Kind.String(), "no collection configured"))
		return
	}

	var (
		existing integration.ExternalIDMapping
		found    bool
		err      error
	)
	if !knownMissing {
		existing, found, err = o.mappings.Lookup(ctx, e.ID, ch.Key)
		if err != nil {
			rec.Fail(fmt.Errorf("looking up mapping: %w", err))
			return
		}
	}
	if found && !sameKind(existing.EntityKind, e.Kind) {
		rec.Fail(fmt.Errorf("%w: %s %s is mapped as %s %s/%s", integration.ErrMappingKindMismatch,
			e.Kind, e.ID, existing.EntityKind, existing.Collection, existing.ExternalID))
		return
	}

	relations, err := o.resolveRelations(ctx, e, ch.Key, rec)
	if err != nil {
		rec.Fail(err)
		return
	}

	hash := integration.ContentHash(e, ch.Key, relations, AcceptedMemberships(e, ch))
	if found && existing.ContentHash == hash {
		rec.Outcome = integration.SyncOutcomeSkipped
		rec.SkipReason = integration.SkipReasonUnchanged
		rec.ExternalID = existing.ExternalID
		return
	}

	refs, err := o.resolveTaxonomy(ctx, e, gw, relations)
	if err != nil {
		rec.Fail(fmt.Errorf("resolving taxonomy: %w", err))
		return
	}
	payload := buildPayload(e, relations, refs)

	if o.dryRun {
		rec.Outcome = integration.SyncOutcomeCreated
		if found {
			rec.Outcome = integration.SyncOutcomeUpdated
			rec.ExternalID = existing.ExternalID
		}
		rec.Payload = describePayload(collection, existing.ExternalID, payload)
		return
	}

	externalID := existing.ExternalID
	if !found {
		externalID, err = gw.CreateEntity(ctx, collection, payload)
		if err != nil {
			o.dropRejectedTerms(ctx, payload, err, log)
			rec.Fail(fmt.Errorf("creating %s: %w", e.Kind, err))
			return
		}
		rec.Outcome = integration.SyncOutcomeCreated
	} else {
		if err := gw.UpdateEntity(ctx, collection, externalID, payload); err != nil {
			o.dropRejectedTerms(ctx, payload, err, log)
			rec.Fail(fmt.Errorf("updating %s %s: %w", e.Kind, externalID, err))
			return
		}
		rec.Outcome = integration.SyncOutcomeUpdated
	}

	mapping := integration.ExternalIDMapping{
		EntityID:    e.ID,
		EntityKind:  e.Kind,
		Channel:     ch.Key,
		Collection:  collection,
		ExternalID:  externalID,
		ContentHash: hash,
		SyncedAt:    o.now().UTC(),
	}
	if err := o.mappings.Commit(ctx, mapping); err != nil {
		// The object exists on the channel without a mapping; the next run would
		// create it again, which reconciliation detects
		log.Error("mapping commit failed after successful write",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		rec.Fail(fmt.Errorf("committing mapping: %w", err))
		return
	}
	rec.ExternalID = externalID

	if o.publisher != nil {
		if err := o.publisher.PublishSyncMetadata(ctx, e, mapping); err != nil {
			rec.Warn(integration.Warning{
				Kind:    integration.KindOf(err),
				Message: "sync metadata write-back failed: " + err.Error(),
			})
		}
	}
}

// dropRejectedTerms evicts the persistently cached terms of a payload the channel
// rejected, so a term deleted on the channel is resolved again on the next attempt
func (o *Orchestrator) dropRejectedTerms(ctx context.Context, payload integration.EntityPayload, err error, log *zap.Logger) {
	if integration.KindOf(err) != integration.ErrorKindValidation {
		return
	}
	if n := o.resolver.DropCached(ctx, payloadTerms(payload)); n > 0 {
		log.Warn("channel rejected payload, dropped cached taxonomy terms", zap.Int("terms", n))
	}
}

// resolveRelations looks up every relation target in the identifier map. Unresolved
// targets add a warning each and are kept with an empty external ID.
func (o *Orchestrator) resolveRelations(
	ctx context.Context,
	e *integration.CanonicalEntity,
	channel integration.ChannelKey,
	rec *integration.SyncRecord,
) ([]integration.ResolvedRelation, error) {
	resolved := make([]integration.ResolvedRelation, 0, len(e.Relations))
	for _, rel := range e.Relations {
		mapping, found, err := o.mappings.Lookup(ctx, rel.TargetID, channel)
		if err != nil {
			return nil, fmt.Errorf("resolving %s %s: %w", rel.Name, rel.TargetID, err)
		}
		r := integration.ResolvedRelation{Relation: rel}
		if found && sameKind(mapping.EntityKind, rel.TargetKind) {
			r.ExternalID = mapping.ExternalID
		} else {
			rec.Warn(integration.UnresolvedRelationWarning(rel))
		}
		resolved = append(resolved, r)
	}
	return resolved, nil
}

// sameKind treats an unset kind as matching so rows written without a kind still resolve
func sameKind(mapped, want integration.EntityKind) bool {
	return mapped == "" || want == "" || mapped == want
}

func (o *Orchestrator) entityLogger(ctx context.Context, e *integration.CanonicalEntity, channel integration.ChannelKey) *zap.Logger {
	log := o.logger
	if runID := logger.GetRunID(ctx); runID != "" {
		log = log.With(zap.String("run_id", runID))
	}
	return logger.WithTraceContext(ctx, log).With(
		zap.String("entity_id", e.ID),
		zap.String("entity_kind", e.Kind.String()),
		zap.String("channel", channel.String()),
	)
}

// ---------------------------------------------------------------------------
// Batches
// ---------------------------------------------------------------------------

// SyncBatch syncs entities to one channel. Revisions sharing a canonical ID are
// collapsed first, entities the channel does not target are left out, and tiers run in
// relation order so targets are mapped before their dependents. Cancelling ctx stops
// dispatch; entities already dispatched finish.
func (o *Orchestrator) SyncBatch(ctx context.Context, entities []integration.CanonicalEntity, gw integration.ChannelGateway) *integration.RunReport {
	ch := gw.Channel()
	report := integration.NewRunReport(ch.Key, o.dryRun)
	ctx, log := logger.WithRunID(ctx, o.logger, report.RunID.String())
	log = log.With(zap.String("channel", ch.Key.String()))

	tiers := make(map[int][]integration.CanonicalEntity)
	var order []int
	for _, e := range integration.CollapseRevisions(entities) {
		if !ch.Targets(&e) {
			continue
		}
		tier := e.Kind.Tier()
		if _, ok := tiers[tier]; !ok {
			order = append(order, tier)
		}
		tiers[tier] = append(tiers[tier], e)
	}
	slices.Sort(order)

	total := 0
	plans := make(map[int]map[string]struct{}, len(order))
	for _, t := range order {
		total += len(tiers[t])
		missing, err := o.planTier(ctx, ch.Key, tiers[t])
		if err != nil {
			log.Warn("create/update plan unavailable, looking up entities one by one",
				zap.Int("tier", t),
				zap.Error(err),
			)
			continue
		}
		plans[t] = missing
		report.Planned.Creates += len(missing)
		report.Planned.Updates += len(tiers[t]) - len(missing)
	}
	log.Info("sync started",
		zap.Int("entities", total),
		zap.Int("planned_creates", report.Planned.Creates),
		zap.Int("planned_updates", report.Planned.Updates),
		zap.Int("concurrency", o.concurrency),
		zap.Bool("dry_run", o.dryRun),
	)

	for _, t := range order {
		records, cancelled := o.runTier(ctx, tiers[t], plans[t], gw)
		for _, rec := range records {
			report.Add(rec)
		}
		if cancelled {
			report.Cancelled = true
			break
		}
	}
	report.Finish()

	log.Info("sync finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("warned", report.Warned),
		zap.Int("failed", report.Failed),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

// planTier asks the identifier map which entities of a tier have no mapping yet, in one
// batched call
func (o *Orchestrator) planTier(ctx context.Context, channel integration.ChannelKey, entities []integration.CanonicalEntity) (map[string]struct{}, error) {
	ids := make([]string, len(entities))
	for i := range entities {
		ids[i] = entities[i].ID
	}
	missing, err := o.mappings.EntitiesMissingOn(ctx, channel, ids)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(missing))
	for _, id := range missing {
		set[id] = struct{}{}
	}
	return set, nil
}

// runTier syncs one tier on the worker pool. Each entity is owned by exactly one worker.
// missing holds the planned creates; nil means every entity is looked up.
// Returns the records of dispatched entities in input order.
func (o *Orchestrator) runTier(
	ctx context.Context,
	entities []integration.CanonicalEntity,
	missing map[string]struct{},
	gw integration.ChannelGateway,
) ([]integration.SyncRecord, bool) {
	// Dispatched work is not cut short by cancellation; channel calls carry their own
	// timeouts
	workCtx := context.WithoutCancel(ctx)
	records := make([]integration.SyncRecord, len(entities))

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	dispatched := 0
	cancelled := false
	for i := range entities {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		_, knownMissing := missing[entities[i].ID]
		g.Go(func() error {
			records[i] = o.sync(workCtx, &entities[i], gw, knownMissing)
			return nil
		})
		dispatched++
	}
	_ = g.Wait()

	// A cancellation after the last dispatch still keeps later tiers from starting
	return records[:dispatched], cancelled || ctx.Err() != nil
}

// ---------------------------------------------------------------------------
// Full runs
// ---------------------------------------------------------------------------

// FetchOptions selects the entities pulled from the content store
type FetchOptions struct {
	// Kinds restricts the entity kinds. Empty means all, in dependency order.
	Kinds     []integration.EntityKind
	// Limit caps the number of entities per kind. 0 means no limit.
	Limit     int
	// EntityIDs restricts the run to these canonical IDs, e.g. the failures of a
	// previous run
	EntityIDs []string
}

// FetchEntities pulls entities from the source page by page. Paging stops early when
// the limit is reached or ctx is cancelled.
func FetchEntities(ctx context.Context, source integration.EntitySource, opts FetchOptions) ([]integration.CanonicalEntity, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = integration.AllEntityKinds()
	}
	var only map[string]struct{}
	if len(opts.EntityIDs) > 0 {
		only = make(map[string]struct{}, len(opts.EntityIDs))
		for _, id := range opts.EntityIDs {
			only[id] = struct{}{}
		}
	}

	var entities []integration.CanonicalEntity
	for _, kind := range kinds {
		n := 0
	pages:
		for batch, err := range source.Entities(ctx, kind) {
			if err != nil {
				return entities, fmt.Errorf("fetching %s entities: %w", kind, err)
			}
			for _, e := range batch {
				if only != nil {
					if _, ok := only[e.ID]; !ok {
						continue
					}
				}
				entities = append(entities, e)
				n++
				if opts.Limit > 0 && n >= opts.Limit {
					break pages
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return entities, err
		}
	}
	return entities, nil
}

// SyncAll fetches entities from the source and syncs them to the gateway's channel
func (o *Orchestrator) SyncAll(
	ctx context.Context,
	source integration.EntitySource,
	gw integration.ChannelGateway,
	opts FetchOptions,
) (*integration.RunReport, error) {
	entities, err := FetchEntities(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	return o.SyncBatch(ctx, entities, gw), nil
}
