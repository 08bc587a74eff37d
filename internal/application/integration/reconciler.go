package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DuplicateGroup is a set of terms on one channel that share a normalized key
type DuplicateGroup struct {
	Channel  integration.ChannelKey
	Kind     integration.TaxonomyKind
	ParentID string
	Key      string
	Survivor integration.TaxonomyTerm
	Losers   []integration.TaxonomyTerm
}

// Size returns the number of terms in the group
func (g DuplicateGroup) Size() int {
	return len(g.Losers) + 1
}

// Err returns the informational DuplicateTaxonomyDetected error for the group
func (g DuplicateGroup) Err() error {
	return &integration.DuplicateTaxonomyError{
		Channel: g.Channel,
		Kind:    g.Kind,
		Key:     g.Key,
		Count:   g.Size(),
	}
}

// MergeResult summarises one merged group
type MergeResult struct {
	Redirected   int64
	DeletedTerms int
}

// ReconcileOptions controls a reconciliation run
type ReconcileOptions struct {
	// Kinds restricts the taxonomy kinds scanned. Empty means every supported kind.
	Kinds         []integration.TaxonomyKind
	// Merge merges duplicate terms. Without it the run only reports.
	Merge         bool
	// PruneMappings deletes all but the most recently synced mapping of each
	// duplicate mapping group
	PruneMappings bool
	DryRun        bool
}

// ReconcileReport is the outcome of one reconciliation run
type ReconcileReport struct {
	Channel           integration.ChannelKey
	DryRun            bool
	StartedAt         time.Time
	FinishedAt        time.Time
	Groups            []DuplicateGroup
	DuplicateMappings []integration.DuplicateMapping
	MergedGroups      int
	Redirected        int64
	DeletedTerms      int
	PrunedMappings    int
	Errors            []error
}

// HasDuplicates returns true if any duplicate term or mapping group was found
func (r *ReconcileReport) HasDuplicates() bool {
	return len(r.Groups) > 0 || len(r.DuplicateMappings) > 0
}

// HasErrors returns true if any merge or prune failed
func (r *ReconcileReport) HasErrors() bool {
	return len(r.Errors) > 0
}

// Reconciler finds and merges duplicate taxonomy terms and identifier mappings.
// It is never invoked by a normal sync.
type Reconciler struct {
	mappings integration.IdentifierMap
	cache    integration.TermCache
	logger   *zap.Logger
}

// NewReconciler creates a reconciler. cache may be nil.
func NewReconciler(mappings integration.IdentifierMap, cache integration.TermCache, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{mappings: mappings, cache: cache, logger: logger}
}

// FindDuplicateTerms lists the terms of a kind and groups them by normalized key.
// Groups are returned in the order their first term was listed.
func (r *Reconciler) FindDuplicateTerms(
	ctx context.Context,
	gw integration.ChannelGateway,
	kind integration.TaxonomyKind,
	parentID string,
) ([]DuplicateGroup, error) {
	ch := gw.Channel()
	if !ch.Capabilities.Supports(kind) {
		return nil, nil
	}
	terms, err := gw.ListTerms(ctx, kind, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing %s terms: %w", kind, err)
	}
	return GroupDuplicateTerms(ch.Key, kind, parentID, terms), nil
}

// GroupDuplicateTerms groups terms by normalized key and keeps groups of size > 1
func GroupDuplicateTerms(channel integration.ChannelKey, kind integration.TaxonomyKind, parentID string, terms []integration.TaxonomyTerm) []DuplicateGroup {
	byKey := make(map[string][]integration.TaxonomyTerm)
	var keys []string
	for _, t := range terms {
		key := integration.NormalizeKey(t.DisplayName)
		if key == "" || t.ExternalID == "" {
			continue
		}
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], t)
	}

	var groups []DuplicateGroup
	for _, key := range keys {
		members := byKey[key]
		if len(members) < 2 {
			continue
		}
		survivor := SelectSurvivor(members)
		g := DuplicateGroup{
			Channel:  channel,
			Kind:     kind,
			ParentID: parentID,
			Key:      key,
			Survivor: survivor,
		}
		for _, m := range members {
			if m.ExternalID != survivor.ExternalID {
				g.Losers = append(g.Losers, m)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

// SelectSurvivor picks the term that survives a merge: the most recently modified when
// the channel exposes modification times, otherwise the lowest sequence (first created)
func SelectSurvivor(terms []integration.TaxonomyTerm) integration.TaxonomyTerm {
	best := terms[0]
	for _, t := range terms[1:] {
		if survives(t, best) {
			best = t
		}
	}
	return best
}

func survives(candidate, current integration.TaxonomyTerm) bool {
	if !candidate.ModifiedAt.IsZero() && !current.ModifiedAt.IsZero() && !candidate.ModifiedAt.Equal(current.ModifiedAt) {
		return candidate.ModifiedAt.After(current.ModifiedAt)
	}
	switch {
	case candidate.Sequence > 0 && current.Sequence > 0 && candidate.Sequence != current.Sequence:
		return candidate.Sequence < current.Sequence
	case candidate.Sequence > 0 && current.Sequence == 0:
		return true
	case candidate.Sequence == 0 && current.Sequence > 0:
		return false
	}
	return candidate.ExternalID < current.ExternalID
}

// FindDuplicateMappings returns groups of entities that point at one external object
func (r *Reconciler) FindDuplicateMappings(ctx context.Context, channel integration.ChannelKey) ([]integration.DuplicateMapping, error) {
	return r.mappings.FindDuplicateMappings(ctx, channel)
}

// MergeTerms redirects identifier map rows from each loser to the survivor, deletes the
// loser on the channel and evicts it from the term cache. A loser already gone from the
// channel counts as deleted.
func (r *Reconciler) MergeTerms(ctx context.Context, gw integration.ChannelGateway, group DuplicateGroup) (MergeResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "merge_terms",
		telemetry.WithAttribute(telemetry.SpanAttrChannel, group.Channel.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTermKind, group.Kind.String()),
	)
	defer span.End()

	result, err := r.mergeTerms(ctx, gw, group)
	telemetry.SetAttributes(span, "reconcile.redirected", result.Redirected, "reconcile.deleted_terms", result.DeletedTerms)
	if err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}
	telemetry.SetOK(span)
	return result, nil
}

func (r *Reconciler) mergeTerms(ctx context.Context, gw integration.ChannelGateway, group DuplicateGroup) (MergeResult, error) {
	var result MergeResult
	ch := gw.Channel()
	collection := gw.TermCollection(group.Kind, group.ParentID)
	log := r.logger.With(
		zap.String("channel", ch.Key.String()),
		zap.String("kind", group.Kind.String()),
		zap.String("key", group.Key),
		zap.String("survivor", group.Survivor.ExternalID),
	)

	for _, loser := range group.Losers {
		n, err := r.mappings.RedirectExternalID(ctx, ch.Key, collection, loser.ExternalID, group.Survivor.ExternalID)
		if err != nil {
			return result, fmt.Errorf("redirecting mappings from %s: %w", loser.ExternalID, err)
		}
		result.Redirected += n

		if err := gw.DeleteTerm(ctx, group.Kind, group.ParentID, loser.ExternalID); err != nil && !isNotFound(err) {
			return result, fmt.Errorf("deleting term %s: %w", loser.ExternalID, err)
		}
		result.DeletedTerms++

		if r.cache != nil {
			if err := r.cache.Evict(ctx, loser); err != nil {
				log.Warn("term cache eviction failed", zap.String("loser", loser.ExternalID), zap.Error(err))
			}
		}
		log.Info("merged duplicate term",
			zap.String("loser", loser.ExternalID),
			zap.String("loser_name", loser.DisplayName),
			zap.Int64("redirected", n),
		)
	}

	if r.cache != nil {
		survivor := group.Survivor
		survivor.Key = group.Key
		if err := r.cache.Put(ctx, survivor); err != nil {
			log.Warn("term cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// PruneDuplicateMappings keeps the most recently synced mapping of a group and deletes
// the others. Returns the entity IDs whose mapping was deleted.
func (r *Reconciler) PruneDuplicateMappings(ctx context.Context, dup integration.DuplicateMapping) ([]string, error) {
	if len(dup.Mappings) < 2 {
		return nil, nil
	}
	keep := dup.Mappings[0]
	for _, m := range dup.Mappings[1:] {
		if m.SyncedAt.After(keep.SyncedAt) {
			keep = m
		}
	}

	var deleted []string
	for _, m := range dup.Mappings {
		if m.EntityID == keep.EntityID {
			continue
		}
		if err := r.mappings.Delete(ctx, m.EntityID, dup.Channel); err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
			return deleted, fmt.Errorf("deleting mapping of %s: %w", m.EntityID, err)
		}
		deleted = append(deleted, m.EntityID)
	}
	r.logger.Info("pruned duplicate mappings",
		zap.String("channel", dup.Channel.String()),
		zap.String("external_id", dup.ExternalID),
		zap.String("kept", keep.EntityID),
		zap.Strings("deleted", deleted),
	)
	return deleted, nil
}

// Run scans every supported taxonomy kind of the channel, attribute terms per
// attribute, and the identifier map. Duplicates are reported; they are merged only
// with Merge set and never in a dry run.
func (r *Reconciler) Run(ctx context.Context, gw integration.ChannelGateway, opts ReconcileOptions) (*ReconcileReport, error) {
	ch := gw.Channel()
	report := &ReconcileReport{
		Channel:   ch.Key,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []integration.TaxonomyKind{
			integration.TaxonomyKindAttribute,
			integration.TaxonomyKindAttributeTerm,
			integration.TaxonomyKindBrand,
			integration.TaxonomyKindCategory,
		}
	}

	for _, kind := range kinds {
		groups, err := r.scanKind(ctx, gw, kind)
		if err != nil {
			return report, err
		}
		report.Groups = append(report.Groups, groups...)
	}
	for _, g := range report.Groups {
		r.logger.Warn("duplicate taxonomy detected",
			zap.String("error_kind", integration.ErrorKindDuplicateTaxonomy.String()),
			zap.Error(g.Err()),
		)
	}

	dups, err := r.FindDuplicateMappings(ctx, ch.Key)
	if err != nil {
		return report, fmt.Errorf("finding duplicate mappings: %w", err)
	}
	report.DuplicateMappings = dups

	if opts.DryRun {
		report.FinishedAt = time.Now()
		return report, nil
	}

	if opts.Merge {
		for _, g := range report.Groups {
			res, err := r.MergeTerms(ctx, gw, g)
			report.Redirected += res.Redirected
			report.DeletedTerms += res.DeletedTerms
			if err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			report.MergedGroups++
		}
	}
	if opts.PruneMappings {
		for _, d := range report.DuplicateMappings {
			deleted, err := r.PruneDuplicateMappings(ctx, d)
			report.PrunedMappings += len(deleted)
			if err != nil {
				report.Errors = append(report.Errors, err)
			}
		}
	}
	report.FinishedAt = time.Now()
	return report, nil
}

// scanKind finds duplicates of one kind. Attribute terms are scanned per attribute.
func (r *Reconciler) scanKind(ctx context.Context, gw integration.ChannelGateway, kind integration.TaxonomyKind) ([]DuplicateGroup, error) {
	if !kind.NeedsParent() {
		return r.FindDuplicateTerms(ctx, gw, kind, "")
	}
	if !gw.Channel().Capabilities.Supports(kind) {
		return nil, nil
	}
	attributes, err := gw.ListTerms(ctx, integration.TaxonomyKindAttribute, "")
	if err != nil {
		return nil, fmt.Errorf("listing attributes: %w", err)
	}
	var groups []DuplicateGroup
	for _, attr := range attributes {
		g, err := r.FindDuplicateTerms(ctx, gw, kind, attr.ExternalID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g...)
	}
	return groups, nil
}

func isNotFound(err error) bool {
	var ce *integration.ChannelError
	return errors.As(err, &ce) && ce.IsNotFound()
}
