package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/vitals-app/vitals/internal/analytics"
	"github.com/vitals-app/vitals/internal/goals"
	"github.com/vitals-app/vitals/internal/ui"
)

var goalsCmd = &cobra.Command{
	Use:     "goals",
	GroupID: "reports",
	Short:   "Show progress toward your configured goals",
	Long: `Compare today's metrics against the goals in goals.yaml.

Run 'vitals goals init' first to set your targets. Progress covers
today's steps, last night's sleep, the latest weight measurement, and
workouts over the trailing week.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg, log.New(os.Stderr, "", 0))
		engine := analytics.New(st, cfg.DataDir)

		p, err := engine.GoalProgress(time.Now())
		if errors.Is(err, analytics.ErrNoGoals) {
			fmt.Println("No goals configured. Run 'vitals goals init' to set them.")
			return
		}
		if err != nil {
			fatalf("computing goal progress: %v", err)
		}

		fmt.Printf("%s\n\n", ui.Title("Goal progress"))

		stepsRatio := ratio(float64(p.StepsToday), float64(p.Goals.DailySteps))
		fmt.Printf("  steps    %s %s  %d / %d %s\n",
			ui.ProgressBar(stepsRatio, 10), ui.Percent(stepsRatio),
			p.StepsToday, p.Goals.DailySteps,
			ui.Dim(fmt.Sprintf("(7d avg %.0f, streak %d)", p.StepsAvg7d, p.StepStreak)))

		sleepRatio := ratio(p.SleepHoursLast, p.Goals.SleepHours)
		fmt.Printf("  sleep    %s %s  %.1fh / %.1fh %s\n",
			ui.ProgressBar(sleepRatio, 10), ui.Percent(sleepRatio),
			p.SleepHoursLast, p.Goals.SleepHours,
			ui.Dim(fmt.Sprintf("(7d avg %.1fh)", p.SleepAvg7d)))

		if p.HasWeight {
			toGo := p.WeightKg - p.Goals.WeightKg
			line := fmt.Sprintf("  weight   %.1fkg, goal %.1fkg (%+.1fkg to go)",
				p.WeightKg, p.Goals.WeightKg, toGo)
			if p.HasWeightDelta {
				line += ui.Dim(fmt.Sprintf("  %+.1fkg this week", p.WeightDelta7d))
			}
			fmt.Println(line)
		} else {
			fmt.Printf("  weight   %s\n", ui.Dim("no measurements yet"))
		}

		workoutRatio := ratio(float64(p.WorkoutsWeek), float64(p.Goals.WorkoutsPerWeek))
		fmt.Printf("  workouts %s %s  %d / %d this week\n",
			ui.ProgressBar(workoutRatio, 10), ui.Percent(workoutRatio),
			p.WorkoutsWeek, p.Goals.WorkoutsPerWeek)
	},
}

var goalsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Set your goals interactively",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		current, err := goals.Load(cfg.DataDir)
		if err != nil {
			fatalf("reading existing goals: %v", err)
		}
		if !current.Configured {
			current = goals.Defaults()
		}

		weight := fmt.Sprintf("%g", current.WeightKg)
		steps := strconv.Itoa(current.DailySteps)
		sleep := fmt.Sprintf("%g", current.SleepHours)
		workouts := strconv.Itoa(current.WorkoutsPerWeek)

		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Target weight (kg)").
				Value(&weight).
				Validate(validFloat),
			huh.NewInput().
				Title("Daily step goal").
				Value(&steps).
				Validate(validInt),
			huh.NewInput().
				Title("Sleep goal (hours)").
				Value(&sleep).
				Validate(validFloat),
			huh.NewInput().
				Title("Workouts per week").
				Value(&workouts).
				Validate(validInt),
		))
		if err := form.Run(); err != nil {
			fatalf("%v", err)
		}

		g := goals.Goals{}
		g.WeightKg, _ = strconv.ParseFloat(weight, 64)
		g.DailySteps, _ = strconv.Atoi(steps)
		g.SleepHours, _ = strconv.ParseFloat(sleep, 64)
		g.WorkoutsPerWeek, _ = strconv.Atoi(workouts)

		if err := goals.Save(cfg.DataDir, g); err != nil {
			fatalf("saving goals: %v", err)
		}
		fmt.Printf("%s Goals written to %s\n", ui.OK("✓"), goals.Path(cfg.DataDir))
	},
}

func ratio(value, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return value / goal
}

func validFloat(s string) error {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("enter a number")
	}
	return nil
}

func validInt(s string) error {
	if _, err := strconv.Atoi(s); err != nil {
		return fmt.Errorf("enter a whole number")
	}
	return nil
}

func init() {
	goalsCmd.AddCommand(goalsInitCmd)
	rootCmd.AddCommand(goalsCmd)
}
