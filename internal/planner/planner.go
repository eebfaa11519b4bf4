// Package planner decides what, if anything, to fetch for each metric
// kind. It turns freshness state into minimal date ranges instead of
// re-fetching full history on every cycle.
package planner

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vitals-app/vitals/internal/config"
	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/store"
)

// Plan is a decision to fetch one kind over one inclusive range.
type Plan struct {
	Kind  metric.Kind
	Start time.Time
	End   time.Time

	// Bootstrap marks a kind with no usable local history. Bootstrap plans
	// cover the full configured history window and are never skipped by
	// the interval check.
	Bootstrap bool
}

// Planner computes fetch plans from stored freshness state.
type Planner struct {
	store  *store.Store
	sync   config.Sync
	logger *log.Logger
}

// New returns a planner over st using the sync settings in cfg.
func New(st *store.Store, cfg config.Sync, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(os.Stderr, "[planner] ", log.LstdFlags)
	}
	return &Planner{store: st, sync: cfg, logger: logger}
}

// Plan returns the fetch plan for kind as of now. ok is false when the
// kind is fresh enough to skip this cycle. force bypasses the interval
// check but never widens the range.
func (p *Planner) Plan(kind metric.Kind, now time.Time, force bool) (Plan, bool, error) {
	// Reading the series here quarantines a corrupt file before any fetch,
	// and its freshness anchor is dropped along with it.
	records, err := p.store.ReadAll(kind)
	if err != nil {
		return Plan{}, false, fmt.Errorf("failed to read %s series: %w", kind, err)
	}

	state, synced, err := p.store.Freshness(kind)
	if err != nil {
		return Plan{}, false, fmt.Errorf("failed to load freshness for %s: %w", kind, err)
	}

	historyStart := now.Add(-p.sync.HistoryWindow)

	if !synced || state.LastRemoteSeen.IsZero() || len(records) == 0 {
		// No usable local history: cover the whole window. A kind whose
		// series was quarantined or deleted lands here even when its
		// freshness anchor survived.
		return Plan{Kind: kind, Start: historyStart, End: now, Bootstrap: true}, true, nil
	}

	if !force && now.Sub(state.LastSyncedAt) < p.sync.Interval {
		return Plan{}, false, nil
	}

	start := state.LastRemoteSeen.Add(-p.sync.SafetyOverlap)
	if start.Before(historyStart) {
		start = historyStart
	}
	if start.After(now) {
		// A freshness file carrying a future timestamp (clock skew, manual
		// edits) must not produce an inverted range.
		p.logger.Printf("WARNING: %s last remote timestamp %s is ahead of now, clamping",
			kind, state.LastRemoteSeen.Format(time.RFC3339))
		start = now
	}

	return Plan{Kind: kind, Start: start, End: now}, true, nil
}

// PlanAll returns plans for every kind due as of now, in stable kind
// order. Kinds that are fresh enough are omitted.
func (p *Planner) PlanAll(now time.Time, force bool) ([]Plan, error) {
	var plans []Plan
	for _, kind := range metric.Kinds() {
		plan, ok, err := p.Plan(kind, now, force)
		if err != nil {
			return nil, err
		}
		if ok {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}
