// Package merge folds fetched records into the store and advances
// freshness state. It is only invoked after a successful fetch; a failed
// fetch leaves both series and freshness untouched.
package merge

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/store"
)

// Result summarizes one kind's merge.
type Result struct {
	Kind metric.Kind

	// Changed counts records that were new or replaced an older revision.
	Changed int

	// Freshness is the state committed after the merge.
	Freshness store.FreshnessState
}

// Merger applies fetched records to a store.
type Merger struct {
	store  *store.Store
	logger *log.Logger
}

// New returns a merger over st.
func New(st *store.Store, logger *log.Logger) *Merger {
	if logger == nil {
		logger = log.New(os.Stderr, "[merge] ", log.LstdFlags)
	}
	return &Merger{store: st, logger: logger}
}

// Merge upserts fetched into the kind's series and then commits
// freshness, in that order. An empty fetch still advances LastSyncedAt;
// LastRemoteSeen only ever moves forward.
func (m *Merger) Merge(kind metric.Kind, fetched []metric.Record, now time.Time) (Result, error) {
	changed, err := m.store.Upsert(kind, fetched)
	if err != nil {
		return Result{}, fmt.Errorf("failed to merge %s: %w", kind, err)
	}

	prev, _, err := m.store.Freshness(kind)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load freshness for %s: %w", kind, err)
	}

	next := store.FreshnessState{
		LastSyncedAt:   now,
		LastRemoteSeen: prev.LastRemoteSeen,
	}
	for _, rec := range fetched {
		if rec.Timestamp.After(next.LastRemoteSeen) {
			next.LastRemoteSeen = rec.Timestamp
		}
	}

	// Series is durable by now, so a crash before this write only causes
	// the next sync to re-cover the same range.
	if err := m.store.SetFreshness(kind, next); err != nil {
		return Result{}, fmt.Errorf("failed to commit freshness for %s: %w", kind, err)
	}

	if changed > 0 {
		m.logger.Printf("merged %d %s record(s)", changed, kind)
	}
	return Result{Kind: kind, Changed: changed, Freshness: next}, nil
}
