package store

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitals-app/vitals/internal/metric"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), log.New(os.Stderr, "[store] ", 0))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func stepsRecord(day time.Time, steps int, revision string) metric.Record {
	return metric.Record{
		Kind:      metric.KindSteps,
		Timestamp: metric.Day(day),
		Revision:  revision,
		Payload:   &metric.Steps{TotalSteps: steps},
	}
}

func TestUpsert_AppendsAndReplaces(t *testing.T) {
	s := newTestStore(t)
	d1 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	changed, err := s.Upsert(metric.KindSteps, []metric.Record{
		stepsRecord(d1, 8000, "r1"),
		stepsRecord(d2, 4000, "r2"),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if changed != 2 {
		t.Errorf("changed = %d, want 2", changed)
	}

	// Same timestamp, new revision: replace, not duplicate.
	changed, err = s.Upsert(metric.KindSteps, []metric.Record{stepsRecord(d2, 4100, "r3")})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}

	all, err := s.ReadAll(metric.KindSteps)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(all))
	}
	if got := all[1].Payload.(*metric.Steps).TotalSteps; got != 4100 {
		t.Errorf("replaced steps = %d, want 4100", got)
	}
}

func TestUpsert_SameBatchTwiceIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	batch := []metric.Record{stepsRecord(d, 8000, "r1"), stepsRecord(d.AddDate(0, 0, 1), 9000, "r2")}

	if _, err := s.Upsert(metric.KindSteps, batch); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	changed, err := s.Upsert(metric.KindSteps, batch)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if changed != 0 {
		t.Errorf("second Upsert changed = %d, want 0", changed)
	}

	all, _ := s.ReadAll(metric.KindSteps)
	if len(all) != 2 {
		t.Errorf("len(records) = %d, want 2 (no duplicates)", len(all))
	}
}

func TestUpsert_AbsentRevisionAlwaysReplaces(t *testing.T) {
	s := newTestStore(t)
	d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	if _, err := s.Upsert(metric.KindSteps, []metric.Record{stepsRecord(d, 8000, "")}); err != nil {
		t.Fatal(err)
	}
	changed, err := s.Upsert(metric.KindSteps, []metric.Record{stepsRecord(d, 8000, "")})
	if err != nil {
		t.Fatal(err)
	}
	if changed != 1 {
		t.Errorf("changed = %d, want 1 (no revision means no proof of sameness)", changed)
	}
}

func TestRead_FiltersByRange(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var batch []metric.Record
	for i := 0; i < 10; i++ {
		batch = append(batch, stepsRecord(base.AddDate(0, 0, i), 1000*i, "r"))
	}
	if _, err := s.Upsert(metric.KindSteps, batch); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(metric.KindSteps, Range{Start: base.AddDate(0, 0, 3), End: base.AddDate(0, 0, 6)})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 4 {
		t.Errorf("len(records) = %d, want 4 (inclusive bounds)", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Error("records not ordered by timestamp")
		}
	}
}

func TestReadAll_CorruptFileQuarantinedAndTreatedEmpty(t *testing.T) {
	var logBuf bytes.Buffer
	dir := t.TempDir()
	s, err := Open(dir, log.New(&logBuf, "[store] ", 0))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, metric.KindSleep.SeriesFilename())
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadAll(metric.KindSleep)
	if err != nil {
		t.Fatalf("ReadAll() error = %v, want recovery", err)
	}
	if len(got) != 0 {
		t.Errorf("len(records) = %d, want 0", len(got))
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt file still present, want quarantined")
	}
	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Errorf("quarantine files = %v, want exactly one", matches)
	}
	if logBuf.Len() == 0 {
		t.Error("expected quarantine warning in log")
	}
}

func TestQuarantineDropsFreshnessAnchor(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, log.New(os.Stderr, "[store] ", 0))
	if err != nil {
		t.Fatal(err)
	}

	d := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	if _, err := s.Upsert(metric.KindSleep, []metric.Record{{
		Kind: metric.KindSleep, Timestamp: d, Revision: "r1",
		Payload: &metric.Sleep{DurationSeconds: 7 * 3600},
	}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFreshness(metric.KindSleep, FreshnessState{
		LastSyncedAt: d, LastRemoteSeen: d,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFreshness(metric.KindSteps, FreshnessState{
		LastSyncedAt: d, LastRemoteSeen: d,
	}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, metric.KindSleep.SeriesFilename())
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if got, err := s.ReadAll(metric.KindSleep); err != nil || len(got) != 0 {
		t.Fatalf("ReadAll() = %d records, err %v; want empty after quarantine", len(got), err)
	}

	// The anchor goes with the series, otherwise the records older than the
	// overlap window would never be fetched again.
	if _, ok, err := s.Freshness(metric.KindSleep); err != nil || ok {
		t.Errorf("Freshness() ok=%v err=%v, want anchor dropped", ok, err)
	}

	// Unrelated kinds keep theirs.
	if _, ok, _ := s.Freshness(metric.KindSteps); !ok {
		t.Error("steps freshness lost, want untouched")
	}
}

func TestUpsert_CrashDuringWriteKeepsPriorState(t *testing.T) {
	s := newTestStore(t)
	d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	if _, err := s.Upsert(metric.KindWeight, []metric.Record{{
		Kind: metric.KindWeight, Timestamp: metric.Day(d), Revision: "r1",
		Payload: &metric.Weight{WeightKg: 74.2},
	}}); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash that left a half-written temp file behind. The live
	// series file must be unaffected and the next read must not see it.
	tmp := filepath.Join(s.Dir(), metric.KindWeight.SeriesFilename()+".tmp")
	if err := os.WriteFile(tmp, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	all, err := s.ReadAll(metric.KindWeight)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(all) != 1 || all[0].Payload.(*metric.Weight).WeightKg != 74.2 {
		t.Errorf("prior committed state lost: %+v", all)
	}
}

func TestFreshness_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.Freshness(metric.KindStress); err != nil || ok {
		t.Fatalf("Freshness() before sync = ok=%v err=%v, want absent", ok, err)
	}

	want := FreshnessState{
		LastSyncedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		LastRemoteSeen: time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
	}
	if err := s.SetFreshness(metric.KindStress, want); err != nil {
		t.Fatalf("SetFreshness() error = %v", err)
	}

	got, ok, err := s.Freshness(metric.KindStress)
	if err != nil || !ok {
		t.Fatalf("Freshness() = ok=%v err=%v, want present", ok, err)
	}
	if !got.LastSyncedAt.Equal(want.LastSyncedAt) || !got.LastRemoteSeen.Equal(want.LastRemoteSeen) {
		t.Errorf("Freshness() = %+v, want %+v", got, want)
	}

	// Other kinds are untouched.
	if _, ok, _ := s.Freshness(metric.KindSteps); ok {
		t.Error("steps freshness present, want absent")
	}
}

func TestConcurrentReadsDuringWrite(t *testing.T) {
	s := newTestStore(t)
	d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, err := s.Upsert(metric.KindSteps, []metric.Record{stepsRecord(d, 1000, "r1")}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 20)
	for i := 0; i < 10; i++ {
		go func(n int) {
			_, err := s.Upsert(metric.KindSteps, []metric.Record{stepsRecord(d, 1000+n, "")})
			done <- err
		}(i)
		go func() {
			recs, err := s.ReadAll(metric.KindSteps)
			if err == nil && len(recs) != 1 {
				err = os.ErrInvalid
			}
			done <- err
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent access error = %v", err)
		}
	}
}
