// Package syncer coordinates one sync cycle: plan, fetch, merge, and
// report, per kind. One kind's failure never blocks another; one sync's
// execution always blocks another.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vitals-app/vitals/internal/config"
	"github.com/vitals-app/vitals/internal/merge"
	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/planner"
	"github.com/vitals-app/vitals/internal/remote"
	"github.com/vitals-app/vitals/internal/store"
)

// ErrSyncInProgress is returned when a sync is already running, in this
// process or in another one sharing the data directory.
var ErrSyncInProgress = errors.New("sync already in progress")

// KindStatus is a kind's outcome within one cycle.
type KindStatus string

const (
	StatusDone    KindStatus = "done"
	StatusSkipped KindStatus = "skipped"
	StatusFailed  KindStatus = "failed"
)

// KindResult is one kind's slice of a sync cycle.
type KindResult struct {
	Kind      metric.Kind `json:"kind"`
	Status    KindStatus  `json:"status"`
	Changed   int         `json:"changed,omitempty"`
	Bootstrap bool        `json:"bootstrap,omitempty"`

	// Reason and Error are set for failed kinds only.
	Reason remote.Reason `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Result is the outcome of one full cycle, persisted for `vitals status`.
type Result struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Kinds      []KindResult `json:"kinds"`

	// StepsDelta is the absolute change in today's step count produced by
	// this cycle.
	StepsDelta int `json:"steps_delta"`

	// NotificationWorthy means the steps delta met the configured
	// threshold inside waking hours. Data is merged either way.
	NotificationWorthy bool `json:"notification_worthy"`

	// SuppressedByHours means the delta met the threshold but the cycle
	// ran outside waking hours.
	SuppressedByHours bool `json:"suppressed_by_hours,omitempty"`
}

// Changed sums changed records across kinds.
func (r *Result) Changed() int {
	total := 0
	for _, kr := range r.Kinds {
		total += kr.Changed
	}
	return total
}

// Failed returns the kinds that failed this cycle.
func (r *Result) Failed() []KindResult {
	var failed []KindResult
	for _, kr := range r.Kinds {
		if kr.Status == StatusFailed {
			failed = append(failed, kr)
		}
	}
	return failed
}

// ResultFilename is where the latest cycle's result is persisted, inside
// the data directory.
const ResultFilename = "last_sync.json"

const lockFilename = ".sync.lock"

// Coordinator runs sync cycles. Safe for concurrent use; concurrent
// cycles are rejected, not queued.
type Coordinator struct {
	store  *store.Store
	source remote.Source
	plan   *planner.Planner
	merge  *merge.Merger
	sync   config.Sync
	logger *log.Logger

	// now is swappable for tests.
	now func() time.Time

	mu sync.Mutex
}

// New wires a coordinator over the store and remote source.
func New(st *store.Store, src remote.Source, cfg config.Sync, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Coordinator{
		store:  st,
		source: src,
		plan:   planner.New(st, cfg, logger),
		merge:  merge.New(st, logger),
		sync:   cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Store exposes the underlying store for derived consumers (cache
// refresh, analytics).
func (c *Coordinator) Store() *store.Store { return c.store }

// Sync runs one cycle. force bypasses the per-kind interval check. The
// returned Result is also persisted to last_sync.json.
func (c *Coordinator) Sync(ctx context.Context, force bool) (*Result, error) {
	if !c.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.mu.Unlock()

	// A second process sharing the data dir is fenced with flock. The fd
	// stays open for the cycle; close releases the lock.
	lockFd, err := c.acquireFileLock()
	if err != nil {
		return nil, err
	}
	defer unix.Close(lockFd)

	started := c.now()
	result := &Result{StartedAt: started}

	stepsBefore, err := c.todaySteps(started)
	if err != nil {
		return nil, err
	}

	for _, kind := range metric.Kinds() {
		result.Kinds = append(result.Kinds, c.syncKind(ctx, kind, force))
	}

	stepsAfter, err := c.todaySteps(started)
	if err != nil {
		return nil, err
	}
	delta := stepsAfter - stepsBefore
	if delta < 0 {
		delta = -delta
	}
	result.StepsDelta = delta
	if delta >= c.sync.ChangeThresholdSteps && delta > 0 {
		if c.sync.WithinWakingHours(started) {
			result.NotificationWorthy = true
		} else {
			result.SuppressedByHours = true
		}
	}

	result.FinishedAt = c.now()
	if err := c.persistResult(result); err != nil {
		c.logger.Printf("WARNING: could not persist sync result: %v", err)
	}

	c.logger.Printf("sync finished: %d record(s) changed, %d kind(s) failed",
		result.Changed(), len(result.Failed()))
	return result, nil
}

// syncKind runs plan, fetch, merge for one kind. Errors are captured in
// the KindResult, never propagated, so sibling kinds keep going.
func (c *Coordinator) syncKind(ctx context.Context, kind metric.Kind, force bool) KindResult {
	plan, ok, err := c.plan.Plan(kind, c.now(), force)
	if err != nil {
		return failedResult(kind, err)
	}
	if !ok {
		return KindResult{Kind: kind, Status: StatusSkipped}
	}

	fetchCtx := ctx
	if c.sync.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.sync.FetchTimeout)
		defer cancel()
	}

	fetched, err := c.source.Fetch(fetchCtx, kind, plan.Start, plan.End)
	if err != nil {
		// Freshness is untouched: the next cycle re-plans the same range.
		c.logger.Printf("WARNING: %s fetch failed: %v", kind, err)
		return failedResult(kind, err)
	}

	res, err := c.merge.Merge(kind, fetched, c.now())
	if err != nil {
		return failedResult(kind, err)
	}

	return KindResult{Kind: kind, Status: StatusDone, Changed: res.Changed, Bootstrap: plan.Bootstrap}
}

func failedResult(kind metric.Kind, err error) KindResult {
	kr := KindResult{Kind: kind, Status: StatusFailed, Error: err.Error()}
	if reason, ok := remote.ReasonOf(err); ok {
		kr.Reason = reason
	}
	return kr
}

// todaySteps reads today's step total from the store.
func (c *Coordinator) todaySteps(now time.Time) (int, error) {
	day := metric.Day(now)
	records, err := c.store.Read(metric.KindSteps, store.Range{Start: day, End: day})
	if err != nil {
		return 0, fmt.Errorf("failed to read today's steps: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[0].Payload.(*metric.Steps).TotalSteps, nil
}

func (c *Coordinator) acquireFileLock() (int, error) {
	path := filepath.Join(c.store.Dir(), lockFilename)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0644)
	if err != nil {
		return -1, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return -1, ErrSyncInProgress
		}
		return -1, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return fd, nil
}

func (c *Coordinator) persistResult(result *Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(filepath.Join(c.store.Dir(), ResultFilename), data)
}

// LoadLastResult reads the most recently persisted cycle result. ok is
// false when no sync has run yet.
func LoadLastResult(dataDir string) (*Result, bool, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, ResultFilename))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read last sync result: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("failed to parse last sync result: %w", err)
	}
	return &result, true, nil
}
