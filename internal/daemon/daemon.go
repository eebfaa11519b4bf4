// Package daemon hosts the recurring sync trigger.
//
// The coordinator itself never schedules anything; this package wraps it
// with a cron schedule, a goals-file watcher, the derived cache refresh,
// and dashboard pushes. Stopping the daemon loses nothing: the next
// `vitals sync` picks up exactly where the last cycle left off.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/vitals-app/vitals/internal/analytics"
	"github.com/vitals-app/vitals/internal/cache"
	"github.com/vitals-app/vitals/internal/dashboard"
	"github.com/vitals-app/vitals/internal/goals"
	"github.com/vitals-app/vitals/internal/syncer"
)

// Config holds daemon settings.
type Config struct {
	// Interval between sync cycles.
	Interval time.Duration

	// Schedule, when set, is a cron spec overriding Interval.
	Schedule string

	// Debounce batches rapid goals-file edits into one push.
	Debounce time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() *Config {
	return &Config{
		Interval: 10 * time.Minute,
		Debounce: 250 * time.Millisecond,
		Logger:   log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon runs sync cycles on a schedule and pushes results out.
type Daemon struct {
	coordinator *syncer.Coordinator
	engine      *analytics.Engine
	cacheDB     *cache.DB
	dash        *dashboard.Server
	dataDir     string
	config      *Config

	cron    *cron.Cron
	watcher *fsnotify.Watcher

	lastEdit   time.Time
	lastEditMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a daemon. cacheDB and dash may be nil; the corresponding
// pushes are skipped.
func New(coordinator *syncer.Coordinator, engine *analytics.Engine, cacheDB *cache.DB,
	dash *dashboard.Server, dataDir string, config *Config) (*Daemon, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		coordinator: coordinator,
		engine:      engine,
		cacheDB:     cacheDB,
		dash:        dash,
		dataDir:     dataDir,
		config:      config,
		cron:        cron.New(),
		watcher:     watcher,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start runs one immediate cycle, then blocks syncing on schedule until
// ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("daemon starting, syncing every %s", d.config.Interval)

	d.runCycle(ctx)

	spec := d.config.Schedule
	if spec == "" {
		spec = fmt.Sprintf("@every %s", d.config.Interval)
	}
	if _, err := d.cron.AddFunc(spec, func() { d.runCycle(d.ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sync with %q: %w", spec, err)
	}
	d.cron.Start()

	// Goals live in the data dir; watch the dir, not the file, because
	// atomic saves replace the inode.
	if err := d.watcher.Add(d.dataDir); err != nil {
		d.config.Logger.Printf("WARNING: cannot watch %s for goal edits: %v", d.dataDir, err)
	} else {
		d.wg.Add(2)
		go d.watchGoalEvents()
		go d.flushGoalEdits()
	}

	select {
	case <-ctx.Done():
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the schedule and watcher down and waits for in-flight work.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("daemon stopping")
	d.cancel()

	cronCtx := d.cron.Stop()
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("error closing watcher: %v", err)
	}

	d.wg.Wait()
	<-cronCtx.Done()
	return nil
}

// runCycle executes one sync and pushes the results to the cache and
// dashboard. Failures are logged, never fatal: the next tick retries.
func (d *Daemon) runCycle(ctx context.Context) {
	result, err := d.coordinator.Sync(ctx, false)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			d.config.Logger.Println("cycle skipped, sync already running")
			return
		}
		d.config.Logger.Printf("WARNING: sync cycle failed: %v", err)
		return
	}

	if result.NotificationWorthy {
		d.config.Logger.Printf("steps changed by %d", result.StepsDelta)
	}

	if d.cacheDB != nil {
		if err := d.cacheDB.RefreshFromStore(ctx, d.coordinator.Store()); err != nil {
			d.config.Logger.Printf("WARNING: cache refresh failed: %v", err)
		}
	}

	d.pushStatus(ctx, result)
}

// pushStatus broadcasts the cycle result, freshness summary, and goal
// progress to dashboard subscribers.
func (d *Daemon) pushStatus(ctx context.Context, result *syncer.Result) {
	if d.dash == nil {
		return
	}

	if result != nil {
		if msg, err := dashboard.SyncCompleteMessage(result); err == nil {
			d.dash.Broadcast(msg)
		}
	}

	if d.cacheDB != nil {
		if summary, err := d.cacheDB.Summary(ctx); err == nil {
			if msg, err := dashboard.FreshnessMessage(summary); err == nil {
				d.dash.Broadcast(msg)
			}
		}
	}

	if d.engine != nil {
		progress, err := d.engine.GoalProgress(time.Now())
		if err == nil {
			if msg, err := dashboard.GoalProgressMessage(progress); err == nil {
				d.dash.Broadcast(msg)
			}
		} else if !errors.Is(err, analytics.ErrNoGoals) {
			d.config.Logger.Printf("WARNING: goal progress push failed: %v", err)
		}
	}
}

// watchGoalEvents records edits to the goals file.
func (d *Daemon) watchGoalEvents() {
	defer d.wg.Done()

	goalsPath := goals.Path(d.dataDir)
	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != goalsPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			d.lastEditMu.Lock()
			d.lastEdit = time.Now()
			d.lastEditMu.Unlock()
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("watcher error: %v", err)
		}
	}
}

// flushGoalEdits pushes fresh goal progress once edits settle.
func (d *Daemon) flushGoalEdits() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.lastEditMu.Lock()
			pending := !d.lastEdit.IsZero() && time.Since(d.lastEdit) >= d.config.Debounce
			if pending {
				d.lastEdit = time.Time{}
			}
			d.lastEditMu.Unlock()

			if pending {
				d.config.Logger.Println("goals file changed, pushing progress")
				d.pushStatus(d.ctx, nil)
			}
		}
	}
}
