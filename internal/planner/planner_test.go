package planner

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitals-app/vitals/internal/config"
	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/store"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testSyncConfig() config.Sync {
	return config.Sync{
		Interval:      10 * time.Minute,
		SafetyOverlap: 3 * 24 * time.Hour,
		HistoryWindow: 2190 * 24 * time.Hour,
	}
}

func newTestPlanner(t *testing.T, cfg config.Sync) (*Planner, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	return New(st, cfg, log.New(os.Stderr, "", 0)), st
}

// seedRecord gives a kind one committed record so its series is non-empty.
func seedRecord(t *testing.T, st *store.Store, kind metric.Kind, day time.Time) {
	t.Helper()
	var payload metric.Payload
	switch kind {
	case metric.KindSteps:
		payload = &metric.Steps{TotalSteps: 1000}
	case metric.KindSleep:
		payload = &metric.Sleep{DurationSeconds: 7 * 3600}
	case metric.KindWeight:
		payload = &metric.Weight{WeightKg: 74.0}
	default:
		t.Fatalf("no seed payload for %s", kind)
	}
	if _, err := st.Upsert(kind, []metric.Record{{
		Kind: kind, Timestamp: metric.Day(day), Revision: "r", Payload: payload,
	}}); err != nil {
		t.Fatal(err)
	}
}

func TestPlan_BootstrapCoversHistoryWindow(t *testing.T) {
	cfg := testSyncConfig()
	p, _ := newTestPlanner(t, cfg)

	plan, ok, err := p.Plan(metric.KindSteps, testNow, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !ok {
		t.Fatal("Plan() ok = false, want bootstrap plan")
	}
	if !plan.Bootstrap {
		t.Error("Bootstrap = false, want true for unsynced kind")
	}
	if want := testNow.Add(-cfg.HistoryWindow); !plan.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", plan.Start, want)
	}
	if !plan.End.Equal(testNow) {
		t.Errorf("End = %v, want now", plan.End)
	}
}

func TestPlan_SkipsWithinInterval(t *testing.T) {
	p, st := newTestPlanner(t, testSyncConfig())
	seedRecord(t, st, metric.KindSteps, testNow)
	if err := st.SetFreshness(metric.KindSteps, store.FreshnessState{
		LastSyncedAt:   testNow.Add(-5 * time.Minute),
		LastRemoteSeen: metric.Day(testNow),
	}); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := p.Plan(metric.KindSteps, testNow, false); err != nil || ok {
		t.Errorf("Plan() ok=%v err=%v, want skip inside interval", ok, err)
	}

	// force overrides the interval check.
	plan, ok, err := p.Plan(metric.KindSteps, testNow, true)
	if err != nil || !ok {
		t.Fatalf("forced Plan() ok=%v err=%v, want plan", ok, err)
	}
	if plan.Bootstrap {
		t.Error("forced plan marked bootstrap for a synced kind")
	}
}

func TestPlan_OverlapBehindLastSeen(t *testing.T) {
	// The planned start must always trail LastRemoteSeen by exactly the
	// configured overlap, whatever the overlap is.
	for _, overlapDays := range []int{0, 1, 3, 7, 14} {
		t.Run(fmt.Sprintf("overlap_%dd", overlapDays), func(t *testing.T) {
			cfg := testSyncConfig()
			cfg.SafetyOverlap = time.Duration(overlapDays) * 24 * time.Hour
			p, st := newTestPlanner(t, cfg)

			lastSeen := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
			seedRecord(t, st, metric.KindWeight, lastSeen)
			if err := st.SetFreshness(metric.KindWeight, store.FreshnessState{
				LastSyncedAt:   testNow.Add(-time.Hour),
				LastRemoteSeen: lastSeen,
			}); err != nil {
				t.Fatal(err)
			}

			plan, ok, err := p.Plan(metric.KindWeight, testNow, false)
			if err != nil || !ok {
				t.Fatalf("Plan() ok=%v err=%v", ok, err)
			}
			if want := lastSeen.AddDate(0, 0, -overlapDays); !plan.Start.Equal(want) {
				t.Errorf("Start = %v, want %v", plan.Start, want)
			}
			if !plan.End.Equal(testNow) {
				t.Errorf("End = %v, want now", plan.End)
			}
		})
	}
}

func TestPlan_StartNeverBeforeHistoryWindow(t *testing.T) {
	cfg := testSyncConfig()
	cfg.HistoryWindow = 30 * 24 * time.Hour
	cfg.SafetyOverlap = 90 * 24 * time.Hour
	p, st := newTestPlanner(t, cfg)

	seedRecord(t, st, metric.KindSleep, testNow.AddDate(0, 0, -1))
	if err := st.SetFreshness(metric.KindSleep, store.FreshnessState{
		LastSyncedAt:   testNow.Add(-time.Hour),
		LastRemoteSeen: metric.Day(testNow.AddDate(0, 0, -1)),
	}); err != nil {
		t.Fatal(err)
	}

	plan, ok, err := p.Plan(metric.KindSleep, testNow, false)
	if err != nil || !ok {
		t.Fatalf("Plan() ok=%v err=%v", ok, err)
	}
	if want := testNow.Add(-cfg.HistoryWindow); !plan.Start.Equal(want) {
		t.Errorf("Start = %v, want history window floor %v", plan.Start, want)
	}
}

func TestPlan_SyncedButNothingSeenIsBootstrap(t *testing.T) {
	p, st := newTestPlanner(t, testSyncConfig())
	if err := st.SetFreshness(metric.KindStress, store.FreshnessState{
		LastSyncedAt: testNow.Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	plan, ok, err := p.Plan(metric.KindStress, testNow, false)
	if err != nil || !ok {
		t.Fatalf("Plan() ok=%v err=%v", ok, err)
	}
	if !plan.Bootstrap {
		t.Error("Bootstrap = false, want true when no remote record was ever seen")
	}
}

func TestPlan_FutureLastSeenClamped(t *testing.T) {
	p, st := newTestPlanner(t, config.Sync{Interval: 10 * time.Minute, HistoryWindow: 30 * 24 * time.Hour})
	seedRecord(t, st, metric.KindSteps, testNow)
	if err := st.SetFreshness(metric.KindSteps, store.FreshnessState{
		LastSyncedAt:   testNow.Add(-time.Hour),
		LastRemoteSeen: testNow.Add(48 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	plan, ok, err := p.Plan(metric.KindSteps, testNow, false)
	if err != nil || !ok {
		t.Fatalf("Plan() ok=%v err=%v", ok, err)
	}
	if plan.Start.After(plan.End) {
		t.Errorf("inverted range: start %v after end %v", plan.Start, plan.End)
	}
}

func TestPlan_QuarantinedSeriesForcesBootstrap(t *testing.T) {
	cfg := testSyncConfig()
	p, st := newTestPlanner(t, cfg)

	seedRecord(t, st, metric.KindSleep, testNow.AddDate(0, 0, -1))
	if err := st.SetFreshness(metric.KindSleep, store.FreshnessState{
		LastSyncedAt:   testNow.Add(-time.Hour),
		LastRemoteSeen: metric.Day(testNow.AddDate(0, 0, -1)),
	}); err != nil {
		t.Fatal(err)
	}

	// Clobber the committed series. The next plan must not trust the
	// surviving anchor and fetch only the overlap window.
	path := filepath.Join(st.Dir(), metric.KindSleep.SeriesFilename())
	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	plan, ok, err := p.Plan(metric.KindSleep, testNow, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !ok || !plan.Bootstrap {
		t.Fatalf("Plan() ok=%v bootstrap=%v, want full re-sync after quarantine", ok, plan.Bootstrap)
	}
	if want := testNow.Add(-cfg.HistoryWindow); !plan.Start.Equal(want) {
		t.Errorf("Start = %v, want full history window %v", plan.Start, want)
	}
	if !plan.End.Equal(testNow) {
		t.Errorf("End = %v, want now", plan.End)
	}
}

func TestPlanAll_MixesDueAndSkipped(t *testing.T) {
	p, st := newTestPlanner(t, testSyncConfig())

	// steps freshly synced, everything else never synced.
	seedRecord(t, st, metric.KindSteps, testNow)
	if err := st.SetFreshness(metric.KindSteps, store.FreshnessState{
		LastSyncedAt:   testNow.Add(-time.Minute),
		LastRemoteSeen: metric.Day(testNow),
	}); err != nil {
		t.Fatal(err)
	}

	plans, err := p.PlanAll(testNow, false)
	if err != nil {
		t.Fatalf("PlanAll() error = %v", err)
	}
	if len(plans) != len(metric.Kinds())-1 {
		t.Fatalf("len(plans) = %d, want %d", len(plans), len(metric.Kinds())-1)
	}
	for _, plan := range plans {
		if plan.Kind == metric.KindSteps {
			t.Error("steps planned despite being fresh")
		}
		if !plan.Bootstrap {
			t.Errorf("%s plan not marked bootstrap", plan.Kind)
		}
	}
}
