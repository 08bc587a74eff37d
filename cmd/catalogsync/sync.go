package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	appintegration "github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/application/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/config"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// runSync fetches the canonical entities once and syncs them to each targeted channel
// in turn. Channels never share a resolver.
func runSync(ctx context.Context, cfg *config.Config, log *zap.Logger, opts options, w io.Writer) error {
	a, err := newApp(ctx, cfg, log, opts.channels, appOptions{readsSource: true})
	if err != nil {
		return err
	}
	defer a.close()

	fetch, err := a.fetchOptions()
	if err != nil {
		return err
	}
	fetch.EntityIDs = opts.entityIDs
	entities, err := appintegration.FetchEntities(ctx, a.source, fetch)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("run cancelled while fetching entities", zap.Error(err))
			return errRunFailed
		}
		return fmt.Errorf("failed to fetch entities: %w", err)
	}
	log.Info("entities fetched", zap.Int("count", len(entities)), zap.Bool("dry_run", opts.dryRun))

	failed := false
	reports := make([]*integration.RunReport, 0, len(a.channels))
	for _, ch := range a.channels {
		gw, err := a.registry.Get(ch.Key)
		if err != nil {
			return err
		}
		report := a.orchestrator(opts.dryRun).SyncBatch(ctx, entities, gw)
		a.recordSync(report)
		reports = append(reports, report)
		failed = failed || report.HasFailures()
		if report.Cancelled {
			break
		}
	}
	a.writeMetricsFile()

	if opts.jsonOutput {
		out := make([]dto.RunReportResponse, 0, len(reports))
		for _, r := range reports {
			out = append(out, dto.NewRunReportResponse(r, opts.records || opts.dryRun))
		}
		if err := writeJSON(w, out); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			printRunReport(w, r)
		}
	}

	if failed {
		return errRunFailed
	}
	return nil
}

// runReconcile scans each targeted channel for duplicate terms and mappings
func runReconcile(ctx context.Context, cfg *config.Config, log *zap.Logger, opts options, w io.Writer) error {
	a, err := newApp(ctx, cfg, log, opts.channels, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	reconciler := a.reconciler()
	reports := make([]*appintegration.ReconcileReport, 0, len(a.channels))
	var errs []error
	for _, ch := range a.channels {
		gw, err := a.registry.Get(ch.Key)
		if err != nil {
			return err
		}
		report, err := reconciler.Run(ctx, gw, appintegration.ReconcileOptions{
			Merge:         opts.merge,
			PruneMappings: opts.pruneMappings,
			DryRun:        opts.dryRun,
		})
		if err != nil {
			if ctx.Err() != nil {
				log.Warn("reconciliation cancelled", zap.String("channel", ch.Key.String()))
				return errRunFailed
			}
			errs = append(errs, fmt.Errorf("reconcile %s: %w", ch.Key, err))
			continue
		}
		a.recordReconcile(report)
		reports = append(reports, report)
		if report.HasErrors() {
			errs = append(errs, errRunFailed)
		}
	}
	a.writeMetricsFile()

	if opts.jsonOutput {
		out := make([]dto.ReconcileReportResponse, 0, len(reports))
		for _, r := range reports {
			out = append(out, dto.NewReconcileReportResponse(r))
		}
		if err := writeJSON(w, out); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			printReconcileReport(w, r)
		}
	}

	if len(errs) > 0 {
		for _, err := range errs {
			if !errors.Is(err, errRunFailed) {
				log.Error("reconciliation failed", zap.Error(err))
			}
		}
		return errRunFailed
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func printRunReport(w io.Writer, r *integration.RunReport) {
	mode := "sync"
	if r.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(w, "%s %s run=%s duration=%s\n", mode, r.Channel, r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  planned creates=%d updates=%d\n", r.Planned.Creates, r.Planned.Updates)
	fmt.Fprintf(w, "  attempted=%d succeeded=%d skipped=%d warned=%d failed=%d",
		r.Attempted, r.Succeeded, r.Skipped, r.Warned, r.Failed)
	if r.Cancelled {
		fmt.Fprint(w, " cancelled")
	}
	fmt.Fprintln(w)

	for _, rec := range r.Records {
		for _, warning := range rec.Warnings {
			fmt.Fprintf(w, "  warn %s %s: %s\n", rec.EntityKind, rec.EntityID, warning)
		}
		if r.DryRun && rec.Payload != nil {
			fmt.Fprintf(w, "  would write %s %s (external_id=%q)\n", rec.EntityKind, rec.EntityID, rec.ExternalID)
		}
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  fail %s %s [%s]: %s\n", f.EntityKind, f.EntityID, f.Kind, f.Message)
	}
	if r.Failed > 0 {
		fmt.Fprintf(w, "  re-run failed: --channel=%s --kinds=%s --ids=%s\n",
			r.Channel, failedKinds(r), strings.Join(r.FailedIDs(), ","))
	}
}

func failedKinds(r *integration.RunReport) string {
	seen := make(map[integration.EntityKind]bool)
	var kinds []string
	for _, f := range r.Failures {
		if !seen[f.EntityKind] {
			seen[f.EntityKind] = true
			kinds = append(kinds, string(f.EntityKind))
		}
	}
	return strings.Join(kinds, ",")
}

func printReconcileReport(w io.Writer, r *appintegration.ReconcileReport) {
	fmt.Fprintf(w, "reconcile %s duplicate_groups=%d duplicate_mappings=%d merged=%d redirected=%d deleted=%d pruned=%d\n",
		r.Channel, len(r.Groups), len(r.DuplicateMappings), r.MergedGroups, r.Redirected, r.DeletedTerms, r.PrunedMappings)
	for _, g := range r.Groups {
		losers := make([]string, 0, len(g.Losers))
		for _, l := range g.Losers {
			losers = append(losers, l.ExternalID)
		}
		fmt.Fprintf(w, "  %s %q keep=%s drop=%s\n", g.Kind, g.Key, g.Survivor.ExternalID, strings.Join(losers, ","))
	}
	for _, d := range r.DuplicateMappings {
		ids := make([]string, 0, len(d.Mappings))
		for _, m := range d.Mappings {
			ids = append(ids, m.EntityID)
		}
		fmt.Fprintf(w, "  mapping %s/%s <- %s\n", d.Collection, d.ExternalID, strings.Join(ids, ","))
	}
	for _, err := range r.Errors {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
}
