// Package analytics computes reports over the local store: goal
// progress, trailing trends, and day-of-week patterns. It never touches
// the network; everything derives from the JSON series files.
package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/store"
)

// ErrInsufficientData is returned when a window holds fewer than two
// samples. Callers render "not enough data" rather than a one-point
// trend.
var ErrInsufficientData = errors.New("not enough data in window")

// ErrNoGoals is returned by goal-relative reports when no goals file has
// been configured.
var ErrNoGoals = errors.New("no goals configured")

// Engine answers read-only questions about stored metrics.
type Engine struct {
	store   *store.Store
	dataDir string
}

// New returns an engine over st. Goals are re-read from dataDir on each
// goal-relative call so edits take effect immediately.
func New(st *store.Store, dataDir string) *Engine {
	return &Engine{store: st, dataDir: dataDir}
}

// value extracts the scalar tracked for trend purposes from one record.
func value(rec metric.Record) float64 {
	switch p := rec.Payload.(type) {
	case *metric.Steps:
		return float64(p.TotalSteps)
	case *metric.Sleep:
		return p.DurationHours()
	case *metric.Weight:
		return p.WeightKg
	case *metric.Activity:
		return float64(p.DurationSeconds) / 60
	case *metric.BodyBattery:
		return float64(p.NetChange())
	case *metric.Stress:
		return float64(p.AvgLevel)
	}
	return 0
}

// Mode says how a kind's daily values aggregate into a summary.
type Mode string

const (
	// ModeSum totals the window (counts of things: steps, minutes moved).
	ModeSum Mode = "sum"
	// ModeMean averages the window (levels: weight, sleep hours, stress).
	ModeMean Mode = "mean"
)

func modeFor(kind metric.Kind) Mode {
	switch kind {
	case metric.KindSteps, metric.KindActivity:
		return ModeSum
	default:
		return ModeMean
	}
}

// Unit is the display unit for a kind's trend values.
func Unit(kind metric.Kind) string {
	switch kind {
	case metric.KindSteps:
		return "steps"
	case metric.KindSleep:
		return "h"
	case metric.KindWeight:
		return "kg"
	case metric.KindActivity:
		return "min"
	case metric.KindBodyBattery:
		return "net"
	case metric.KindStress:
		return "avg"
	}
	return ""
}

// Point is one day's aggregated value.
type Point struct {
	Day   time.Time
	Value float64
}

// Trend summarizes a kind over a window of days.
type Trend struct {
	Kind    metric.Kind
	Mode    Mode
	Points  []Point
	Summary float64
}

// TrendOver aggregates the kind per day over [start, end] and summarizes
// per the kind's mode. Returns ErrInsufficientData when fewer than two
// days carry samples.
func (e *Engine) TrendOver(kind metric.Kind, start, end time.Time) (Trend, error) {
	records, err := e.store.Read(kind, store.Range{Start: start, End: end})
	if err != nil {
		return Trend{}, fmt.Errorf("failed to read %s: %w", kind, err)
	}

	// Bucket by calendar day. Daily kinds already hold one record per day;
	// activities can hold several.
	byDay := map[time.Time]float64{}
	counts := map[time.Time]int{}
	for _, rec := range records {
		day := metric.Day(rec.Timestamp)
		byDay[day] += value(rec)
		counts[day]++
	}
	if len(byDay) < 2 {
		return Trend{}, fmt.Errorf("%s over %d day(s): %w",
			kind, int(end.Sub(start).Hours()/24), ErrInsufficientData)
	}

	mode := modeFor(kind)
	trend := Trend{Kind: kind, Mode: mode}
	for day := metric.Day(start); !day.After(end); day = day.AddDate(0, 0, 1) {
		v, ok := byDay[day]
		if !ok {
			continue
		}
		if mode == ModeMean && counts[day] > 1 {
			v /= float64(counts[day])
		}
		trend.Points = append(trend.Points, Point{Day: day, Value: v})
	}

	var total float64
	for _, pt := range trend.Points {
		total += pt.Value
	}
	trend.Summary = total
	if mode == ModeMean {
		trend.Summary = total / float64(len(trend.Points))
	}
	return trend, nil
}

// TrendDays aggregates over the trailing days ending at now. The window
// runs to the end of now's calendar day, so records logged later today
// still count.
func (e *Engine) TrendDays(kind metric.Kind, days int, now time.Time) (Trend, error) {
	if days < 1 {
		return Trend{}, fmt.Errorf("trend window must be at least 1 day, got %d", days)
	}
	start := metric.Day(now).AddDate(0, 0, -(days - 1))
	return e.TrendOver(kind, start, endOfDay(now))
}

// endOfDay returns the last instant of t's calendar day.
func endOfDay(t time.Time) time.Time {
	return metric.Day(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// WeeklyPattern averages a kind's daily values by day of week over the
// trailing window. Index 0 is Monday. Days with no samples average to 0.
type WeeklyPattern struct {
	Kind   metric.Kind
	Values [7]float64
}

// Pattern computes the weekly pattern over the trailing days ending at
// now. Requires samples on at least two distinct days.
func (e *Engine) Pattern(kind metric.Kind, days int, now time.Time) (WeeklyPattern, error) {
	trend, err := e.TrendOver(kind, metric.Day(now).AddDate(0, 0, -(days-1)), endOfDay(now))
	if err != nil {
		return WeeklyPattern{}, err
	}

	var sums, counts [7]float64
	for _, pt := range trend.Points {
		idx := (int(pt.Day.Weekday()) + 6) % 7
		sums[idx] += pt.Value
		counts[idx]++
	}

	pattern := WeeklyPattern{Kind: kind}
	for i := range sums {
		if counts[i] > 0 {
			pattern.Values[i] = sums[i] / counts[i]
		}
	}
	return pattern, nil
}

// StepStreak counts consecutive days up to and including today that met
// the daily step goal. A day with no record breaks the streak.
func (e *Engine) StepStreak(goal int, now time.Time) (int, error) {
	if goal <= 0 {
		return 0, nil
	}
	records, err := e.store.ReadAll(metric.KindSteps)
	if err != nil {
		return 0, err
	}

	byDay := map[time.Time]int{}
	for _, rec := range records {
		byDay[metric.Day(rec.Timestamp)] = rec.Payload.(*metric.Steps).TotalSteps
	}

	streak := 0
	for day := metric.Day(now); ; day = day.AddDate(0, 0, -1) {
		steps, ok := byDay[day]
		if !ok || steps < goal {
			// Today not finished yet should not break an ongoing streak.
			if streak == 0 && day.Equal(metric.Day(now)) {
				continue
			}
			break
		}
		streak++
	}
	return streak, nil
}

// WeightDelta returns the change in weight over the trailing days:
// newest sample minus oldest sample inside the window. Negative means
// weight went down.
func (e *Engine) WeightDelta(days int, now time.Time) (float64, error) {
	records, err := e.store.Read(metric.KindWeight, store.LastDays(days, now))
	if err != nil {
		return 0, err
	}
	if len(records) < 2 {
		return 0, fmt.Errorf("weight over %d day(s): %w", days, ErrInsufficientData)
	}
	first := records[0].Payload.(*metric.Weight).WeightKg
	last := records[len(records)-1].Payload.(*metric.Weight).WeightKg
	return last - first, nil
}
