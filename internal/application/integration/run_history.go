package integration

import (
	"slices"
	"sync"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
)

// RunHistory keeps the latest sync and reconcile reports per channel for the status
// surface. Safe for concurrent use.
type RunHistory struct {
	mu        sync.RWMutex
	sync      map[integration.ChannelKey]*integration.RunReport
	reconcile map[integration.ChannelKey]*ReconcileReport
}

// NewRunHistory creates an empty history
func NewRunHistory() *RunHistory {
	return &RunHistory{
		sync:      make(map[integration.ChannelKey]*integration.RunReport),
		reconcile: make(map[integration.ChannelKey]*ReconcileReport),
	}
}

// RecordSync stores the report as the latest sync of its channel
func (h *RunHistory) RecordSync(r *integration.RunReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sync[r.Channel] = r
}

// RecordReconcile stores the report as the latest reconciliation of its channel
func (h *RunHistory) RecordReconcile(r *ReconcileReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reconcile[r.Channel] = r
}

// LatestSync returns the latest sync report of a channel
func (h *RunHistory) LatestSync(channel integration.ChannelKey) (*integration.RunReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.sync[channel]
	return r, ok
}

// LatestReconcile returns the latest reconciliation report of a channel
func (h *RunHistory) LatestReconcile(channel integration.ChannelKey) (*ReconcileReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.reconcile[channel]
	return r, ok
}

// Channels returns the channels with at least one recorded report, sorted
func (h *RunHistory) Channels() []integration.ChannelKey {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var keys []integration.ChannelKey
	for k := range h.sync {
		keys = append(keys, k)
	}
	for k := range h.reconcile {
		if _, ok := h.sync[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
