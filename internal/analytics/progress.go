package analytics

import (
	"fmt"
	"time"

	"github.com/vitals-app/vitals/internal/goals"
	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/store"
)

// Progress compares current metrics against the configured goals.
type Progress struct {
	Goals goals.Goals

	// StepsToday is today's step count, 0 when today has not synced yet.
	StepsToday int
	// StepsAvg7d averages the trailing seven days that have samples.
	StepsAvg7d float64
	// StepStreak counts consecutive goal-meeting days ending yesterday or
	// today.
	StepStreak int

	// SleepHoursLast is the most recent night's duration, 0 when no sleep
	// data exists.
	SleepHoursLast float64
	SleepAvg7d     float64

	// WeightKg is the latest measurement; HasWeight is false when no
	// weight was ever recorded.
	WeightKg  float64
	HasWeight bool
	// WeightDelta7d is newest minus oldest over the trailing week; only
	// meaningful when HasWeightDelta is true.
	WeightDelta7d  float64
	HasWeightDelta bool

	// WorkoutsWeek counts activities in the trailing seven days.
	WorkoutsWeek int
}

// GoalProgress builds the goal report as of now. Returns ErrNoGoals when
// the goals file is absent.
func (e *Engine) GoalProgress(now time.Time) (Progress, error) {
	g, err := goals.Load(e.dataDir)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to load goals: %w", err)
	}
	if !g.Configured {
		return Progress{}, ErrNoGoals
	}

	p := Progress{Goals: g}
	week := store.LastDays(7, now)
	today := metric.Day(now)

	steps, err := e.store.Read(metric.KindSteps, week)
	if err != nil {
		return Progress{}, err
	}
	var stepSum int
	for _, rec := range steps {
		total := rec.Payload.(*metric.Steps).TotalSteps
		stepSum += total
		if metric.Day(rec.Timestamp).Equal(today) {
			p.StepsToday = total
		}
	}
	if len(steps) > 0 {
		p.StepsAvg7d = float64(stepSum) / float64(len(steps))
	}
	if p.StepStreak, err = e.StepStreak(g.DailySteps, now); err != nil {
		return Progress{}, err
	}

	sleep, err := e.store.Read(metric.KindSleep, week)
	if err != nil {
		return Progress{}, err
	}
	var sleepSum float64
	for _, rec := range sleep {
		sleepSum += value(rec)
	}
	if len(sleep) > 0 {
		p.SleepHoursLast = value(sleep[len(sleep)-1])
		p.SleepAvg7d = sleepSum / float64(len(sleep))
	}

	// Weight looks beyond the week: the latest measurement matters even if
	// the scale was last used a month ago.
	weight, err := e.store.ReadAll(metric.KindWeight)
	if err != nil {
		return Progress{}, err
	}
	if len(weight) > 0 {
		p.WeightKg = weight[len(weight)-1].Payload.(*metric.Weight).WeightKg
		p.HasWeight = true
	}
	if delta, err := e.WeightDelta(7, now); err == nil {
		p.WeightDelta7d = delta
		p.HasWeightDelta = true
	}

	activities, err := e.store.Read(metric.KindActivity, week)
	if err != nil {
		return Progress{}, err
	}
	p.WorkoutsWeek = len(activities)

	return p, nil
}
