// Package store is the durable home of metric series.
//
// Each metric kind is persisted as one JSON series file in the data
// directory, plus a single freshness.json tracking per-kind sync state.
// Files are the source of truth; everything else (analytics, the SQLite
// query cache, the dashboard) derives from them.
//
// Write discipline:
//   - Whole-series replace via temp file + rename, never in-place edits.
//     A crash mid-write leaves the previous committed series intact.
//   - Series first, freshness second. A crash between the two
//     under-reports freshness, which only causes the next sync to
//     re-cover an already-merged range.
//   - Unparsable series files are quarantined (renamed aside), their
//     freshness anchor is dropped, and reads treat them as empty, forcing
//     a full re-sync for that kind.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vitals-app/vitals/internal/metric"
)

// FreshnessState records when a kind was last synced and how far the
// remote data has been seen.
type FreshnessState struct {
	// LastSyncedAt is the wall-clock time of the last successful merge,
	// including merges that found nothing new.
	LastSyncedAt time.Time `json:"last_synced_at"`

	// LastRemoteSeen is the maximum record timestamp observed from the
	// remote source. It never regresses.
	LastRemoteSeen time.Time `json:"last_remote_timestamp_seen"`
}

// Age returns how long ago the kind was synced, or a negative duration if
// it never was.
func (f FreshnessState) Age(now time.Time) time.Duration {
	if f.LastSyncedAt.IsZero() {
		return -1
	}
	return now.Sub(f.LastSyncedAt)
}

// Range selects records by timestamp. Zero bounds are open ends; both
// bounds are inclusive.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// LastDays returns a range covering the trailing n days up to now.
func LastDays(n int, now time.Time) Range {
	return Range{Start: now.AddDate(0, 0, -n), End: now}
}

// seriesFile is the on-disk envelope for one kind's records.
type seriesFile struct {
	Version int             `json:"version"`
	Kind    metric.Kind     `json:"kind"`
	Records []metric.Record `json:"records"`
}

// freshnessFile is the on-disk envelope for all kinds' freshness.
type freshnessFile struct {
	Version int                       `json:"version"`
	Kinds   map[string]FreshnessState `json:"kinds"`
}

const fileVersion = 1

// FreshnessFilename is the freshness record set's file name.
const FreshnessFilename = "freshness.json"

// Store provides durable per-kind record sets with freshness metadata.
// Safe for concurrent use; operations on different kinds never block each
// other.
type Store struct {
	dir    string
	logger *log.Logger

	// One lock per kind so a write to steps.json cannot stall a sleep
	// read. Freshness has its own lock.
	kindMu  map[metric.Kind]*sync.RWMutex
	freshMu sync.RWMutex
}

// Open prepares a store rooted at dir, creating it if needed. If logger is
// nil, a default stderr logger is used.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	kindMu := make(map[metric.Kind]*sync.RWMutex, len(metric.Kinds()))
	for _, k := range metric.Kinds() {
		kindMu[k] = &sync.RWMutex{}
	}

	return &Store{dir: dir, logger: logger, kindMu: kindMu}, nil
}

// Dir returns the store's data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) seriesPath(kind metric.Kind) string {
	return filepath.Join(s.dir, kind.SeriesFilename())
}

// Read returns the kind's records inside r, ordered by timestamp.
func (s *Store) Read(kind metric.Kind, r Range) ([]metric.Record, error) {
	all, err := s.ReadAll(kind)
	if err != nil {
		return nil, err
	}

	out := make([]metric.Record, 0, len(all))
	for _, rec := range all {
		if r.Contains(rec.Timestamp) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ReadAll returns every record for the kind, ordered by timestamp. A
// missing series file yields an empty slice; a corrupt one is quarantined
// and also yields an empty slice.
func (s *Store) ReadAll(kind metric.Kind) ([]metric.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid kind %q", kind)
	}

	mu := s.kindMu[kind]
	mu.RLock()
	defer mu.RUnlock()

	return s.loadSeriesLocked(kind)
}

// loadSeriesLocked reads and parses the series file. Caller holds at least
// the kind's read lock.
func (s *Store) loadSeriesLocked(kind metric.Kind) ([]metric.Record, error) {
	path := s.seriesPath(kind)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read series file %s: %w", path, err)
	}

	var sf seriesFile
	if err := json.Unmarshal(data, &sf); err != nil {
		s.quarantine(path, err)
		s.dropFreshness(kind)
		return nil, nil
	}

	metric.Sort(sf.Records)
	return sf.Records, nil
}

// dropFreshness forgets a kind's sync anchor. Called after a series
// quarantine: with the anchor gone the next plan covers the full history
// window instead of the narrow overlap range.
func (s *Store) dropFreshness(kind metric.Kind) {
	s.freshMu.Lock()
	defer s.freshMu.Unlock()

	all, err := s.loadFreshnessLocked()
	if err != nil {
		s.logger.Printf("WARNING: could not load freshness while resetting %s: %v", kind, err)
		return
	}
	if _, ok := all.Kinds[string(kind)]; !ok {
		return
	}
	delete(all.Kinds, string(kind))
	if err := s.saveFreshnessLocked(all); err != nil {
		s.logger.Printf("WARNING: could not reset freshness for %s: %v", kind, err)
	}
}

// quarantine moves a corrupt series file aside so the next sync rebuilds
// the kind from scratch. Never fatal.
func (s *Store) quarantine(path string, cause error) {
	quarantined := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, quarantined); err != nil {
		s.logger.Printf("WARNING: corrupt series %s could not be quarantined: %v", path, err)
		return
	}
	s.logger.Printf("WARNING: corrupt series %s quarantined to %s (treating as empty): %v",
		filepath.Base(path), filepath.Base(quarantined), cause)
}

// Upsert merges records into the kind's series and atomically replaces the
// file. Matching is by timestamp: an incoming record with a new timestamp
// is appended; one with an existing timestamp replaces the stored record
// when the revision differs and is a no-op otherwise. Returns the number
// of records that were new or changed.
func (s *Store) Upsert(kind metric.Kind, records []metric.Record) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("invalid kind %q", kind)
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return 0, fmt.Errorf("invalid record: %w", err)
		}
		if records[i].Kind != kind {
			return 0, fmt.Errorf("record kind %q does not match series %q", records[i].Kind, kind)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	mu := s.kindMu[kind]
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.loadSeriesLocked(kind)
	if err != nil {
		return 0, err
	}

	// Key by instant, not time.Time struct equality, so location and
	// monotonic-clock differences cannot create duplicates.
	byTime := make(map[int64]int, len(existing))
	for i, rec := range existing {
		byTime[rec.Timestamp.UnixNano()] = i
	}

	changed := 0
	for _, rec := range records {
		if i, ok := byTime[rec.Timestamp.UnixNano()]; ok {
			// An absent revision cannot prove the record is unchanged, so
			// it always replaces.
			if rec.Revision != "" && existing[i].Revision == rec.Revision {
				continue
			}
			existing[i] = rec
			changed++
			continue
		}
		byTime[rec.Timestamp.UnixNano()] = len(existing)
		existing = append(existing, rec)
		changed++
	}

	if changed == 0 {
		return 0, nil
	}

	metric.Sort(existing)
	if err := s.writeSeriesLocked(kind, existing); err != nil {
		return 0, err
	}
	return changed, nil
}

// writeSeriesLocked persists the full series. Caller holds the kind's
// write lock.
func (s *Store) writeSeriesLocked(kind metric.Kind, records []metric.Record) error {
	sf := seriesFile{Version: fileVersion, Kind: kind, Records: records}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s series: %w", kind, err)
	}
	if err := WriteFileAtomic(s.seriesPath(kind), data); err != nil {
		return fmt.Errorf("failed to write %s series: %w", kind, err)
	}
	return nil
}

// Freshness returns the kind's sync state. ok is false when the kind has
// never been synced.
func (s *Store) Freshness(kind metric.Kind) (FreshnessState, bool, error) {
	if !kind.Valid() {
		return FreshnessState{}, false, fmt.Errorf("invalid kind %q", kind)
	}

	s.freshMu.RLock()
	defer s.freshMu.RUnlock()

	all, err := s.loadFreshnessLocked()
	if err != nil {
		return FreshnessState{}, false, err
	}
	state, ok := all.Kinds[string(kind)]
	return state, ok, nil
}

// SetFreshness commits a kind's sync state. Merge callers must write the
// series before calling this, never after.
func (s *Store) SetFreshness(kind metric.Kind, state FreshnessState) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid kind %q", kind)
	}

	s.freshMu.Lock()
	defer s.freshMu.Unlock()

	all, err := s.loadFreshnessLocked()
	if err != nil {
		return err
	}
	all.Kinds[string(kind)] = state
	return s.saveFreshnessLocked(all)
}

// saveFreshnessLocked persists the freshness file. Caller holds freshMu.
func (s *Store) saveFreshnessLocked(ff freshnessFile) error {
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal freshness: %w", err)
	}
	if err := WriteFileAtomic(filepath.Join(s.dir, FreshnessFilename), data); err != nil {
		return fmt.Errorf("failed to write freshness: %w", err)
	}
	return nil
}

func (s *Store) loadFreshnessLocked() (freshnessFile, error) {
	empty := freshnessFile{Version: fileVersion, Kinds: map[string]FreshnessState{}}

	path := filepath.Join(s.dir, FreshnessFilename)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("failed to read freshness: %w", err)
	}

	var ff freshnessFile
	if err := json.Unmarshal(data, &ff); err != nil {
		s.quarantine(path, err)
		return empty, nil
	}
	if ff.Kinds == nil {
		ff.Kinds = map[string]FreshnessState{}
	}
	return ff, nil
}

// WriteFileAtomic writes data to path via a temp file in the same
// directory followed by a rename.
func WriteFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
