package analytics

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitals-app/vitals/internal/goals"
	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/store"
)

var now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(dir, log.New(os.Stderr, "", 0))
	require.NoError(t, err)
	return New(st, dir), st, dir
}

func seedSteps(t *testing.T, st *store.Store, counts map[int]int) {
	t.Helper()
	var recs []metric.Record
	for daysAgo, steps := range counts {
		recs = append(recs, metric.Record{
			Kind:      metric.KindSteps,
			Timestamp: metric.Day(now.AddDate(0, 0, -daysAgo)),
			Revision:  "r",
			Payload:   &metric.Steps{TotalSteps: steps},
		})
	}
	_, err := st.Upsert(metric.KindSteps, recs)
	require.NoError(t, err)
}

func TestTrendDays_SumsSteps(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedSteps(t, st, map[int]int{0: 4000, 1: 8000, 2: 6000})

	trend, err := e.TrendDays(metric.KindSteps, 7, now)
	require.NoError(t, err)

	assert.Equal(t, ModeSum, trend.Mode)
	assert.Len(t, trend.Points, 3)
	assert.Equal(t, 18000.0, trend.Summary)
	// Points come out oldest first even though seeding order is random.
	for i := 1; i < len(trend.Points); i++ {
		assert.True(t, trend.Points[i].Day.After(trend.Points[i-1].Day))
	}
}

func TestTrendDays_MeansWeight(t *testing.T) {
	e, st, _ := newTestEngine(t)
	for i, kg := range []float64{75.0, 74.5, 74.0} {
		_, err := st.Upsert(metric.KindWeight, []metric.Record{{
			Kind:      metric.KindWeight,
			Timestamp: metric.Day(now.AddDate(0, 0, -i)),
			Revision:  "r",
			Payload:   &metric.Weight{WeightKg: kg},
		}})
		require.NoError(t, err)
	}

	trend, err := e.TrendDays(metric.KindWeight, 7, now)
	require.NoError(t, err)
	assert.Equal(t, ModeMean, trend.Mode)
	assert.InDelta(t, 74.5, trend.Summary, 0.001)
}

func TestTrendDays_OnePointIsInsufficient(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedSteps(t, st, map[int]int{0: 4000})

	_, err := e.TrendDays(metric.KindSteps, 1, now)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrendDays_EmptyStoreIsInsufficient(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.TrendDays(metric.KindSleep, 30, now)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrendOver_ActivitiesSumWithinDay(t *testing.T) {
	e, st, _ := newTestEngine(t)
	day := metric.Day(now)
	_, err := st.Upsert(metric.KindActivity, []metric.Record{
		{Kind: metric.KindActivity, Timestamp: day.Add(7 * time.Hour), Revision: "a",
			Payload: &metric.Activity{Name: "run", Type: "running", DurationSeconds: 1800}},
		{Kind: metric.KindActivity, Timestamp: day.Add(18 * time.Hour), Revision: "b",
			Payload: &metric.Activity{Name: "ride", Type: "cycling", DurationSeconds: 3600}},
		{Kind: metric.KindActivity, Timestamp: day.AddDate(0, 0, -1).Add(8 * time.Hour), Revision: "c",
			Payload: &metric.Activity{Name: "swim", Type: "swimming", DurationSeconds: 1200}},
	})
	require.NoError(t, err)

	trend, err := e.TrendDays(metric.KindActivity, 7, now)
	require.NoError(t, err)
	require.Len(t, trend.Points, 2)
	assert.Equal(t, 20.0, trend.Points[0].Value) // yesterday's swim
	assert.Equal(t, 90.0, trend.Points[1].Value) // today's run + ride
}

func TestPattern_AveragesByWeekday(t *testing.T) {
	e, st, _ := newTestEngine(t)
	// 2026-03-14 is a Saturday. Seed two Saturdays and one Friday.
	seedSteps(t, st, map[int]int{0: 12000, 7: 8000, 1: 5000})

	pattern, err := e.Pattern(metric.KindSteps, 14, now)
	require.NoError(t, err)

	assert.Equal(t, 10000.0, pattern.Values[5], "Saturday mean")
	assert.Equal(t, 5000.0, pattern.Values[4], "Friday")
	assert.Equal(t, 0.0, pattern.Values[0], "Monday has no samples")
}

func TestStepStreak(t *testing.T) {
	tests := []struct {
		name   string
		counts map[int]int
		goal   int
		want   int
	}{
		{name: "three days met", counts: map[int]int{0: 11000, 1: 10500, 2: 10001}, goal: 10000, want: 3},
		{name: "gap breaks streak", counts: map[int]int{0: 11000, 2: 11000}, goal: 10000, want: 1},
		{name: "today under goal keeps yesterday streak", counts: map[int]int{0: 2000, 1: 10500, 2: 10500}, goal: 10000, want: 2},
		{name: "nothing met", counts: map[int]int{0: 100, 1: 200}, goal: 10000, want: 0},
		{name: "empty store", counts: map[int]int{}, goal: 10000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, st, _ := newTestEngine(t)
			seedSteps(t, st, tt.counts)

			got, err := e.StepStreak(tt.goal, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeightDelta(t *testing.T) {
	e, st, _ := newTestEngine(t)
	for i, kg := range map[int]float64{6: 76.0, 3: 75.2, 0: 74.5} {
		_, err := st.Upsert(metric.KindWeight, []metric.Record{{
			Kind:      metric.KindWeight,
			Timestamp: metric.Day(now.AddDate(0, 0, -i)),
			Revision:  "r",
			Payload:   &metric.Weight{WeightKg: kg},
		}})
		require.NoError(t, err)
	}

	delta, err := e.WeightDelta(7, now)
	require.NoError(t, err)
	assert.InDelta(t, -1.5, delta, 0.001)

	_, err = e.WeightDelta(1, now)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestGoalProgress_NoGoalsConfigured(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.GoalProgress(now)
	assert.ErrorIs(t, err, ErrNoGoals)
}

func TestGoalProgress_FullReport(t *testing.T) {
	e, st, dir := newTestEngine(t)
	require.NoError(t, goals.Save(dir, goals.Goals{
		WeightKg: 73.0, DailySteps: 10000, SleepHours: 7.5, WorkoutsPerWeek: 3,
	}))

	seedSteps(t, st, map[int]int{0: 10400, 1: 12000, 2: 9000})

	_, err := st.Upsert(metric.KindSleep, []metric.Record{
		{Kind: metric.KindSleep, Timestamp: metric.Day(now.AddDate(0, 0, -1)), Revision: "s1",
			Payload: &metric.Sleep{DurationSeconds: 6 * 3600}},
		{Kind: metric.KindSleep, Timestamp: metric.Day(now), Revision: "s2",
			Payload: &metric.Sleep{DurationSeconds: 8 * 3600}},
	})
	require.NoError(t, err)

	_, err = st.Upsert(metric.KindWeight, []metric.Record{
		{Kind: metric.KindWeight, Timestamp: metric.Day(now.AddDate(0, 0, -5)), Revision: "w1",
			Payload: &metric.Weight{WeightKg: 75.0}},
		{Kind: metric.KindWeight, Timestamp: metric.Day(now), Revision: "w2",
			Payload: &metric.Weight{WeightKg: 74.2}},
	})
	require.NoError(t, err)

	_, err = st.Upsert(metric.KindActivity, []metric.Record{
		{Kind: metric.KindActivity, Timestamp: now.AddDate(0, 0, -2), Revision: "a1",
			Payload: &metric.Activity{Name: "run", Type: "running", DurationSeconds: 1800}},
	})
	require.NoError(t, err)

	p, err := e.GoalProgress(now)
	require.NoError(t, err)

	assert.Equal(t, 10400, p.StepsToday)
	assert.InDelta(t, 10466.6, p.StepsAvg7d, 1.0)
	assert.Equal(t, 2, p.StepStreak)
	assert.Equal(t, 8.0, p.SleepHoursLast)
	assert.InDelta(t, 7.0, p.SleepAvg7d, 0.001)
	assert.True(t, p.HasWeight)
	assert.Equal(t, 74.2, p.WeightKg)
	assert.True(t, p.HasWeightDelta)
	assert.InDelta(t, -0.8, p.WeightDelta7d, 0.001)
	assert.Equal(t, 1, p.WorkoutsWeek)
	assert.Equal(t, 10000, p.Goals.DailySteps)
}
