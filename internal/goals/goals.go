// Package goals loads the user's health targets.
//
// Goals live next to the metric data in goals.yaml. The file is re-read on
// every analytics call so edits take effect without restarting anything.
// YAML is a superset of JSON, so a legacy goals.json body pasted into the
// file still parses.
package goals

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Goals holds the user-declared targets. Configured is false when no goals
// file exists; consumers report "no goals configured" instead of comparing
// against defaults the user never chose.
type Goals struct {
	Configured bool `yaml:"-"`

	WeightKg        float64 `yaml:"weight_kg"`
	DailySteps      int     `yaml:"daily_steps"`
	SleepHours      float64 `yaml:"sleep_hours"`
	WorkoutsPerWeek int     `yaml:"workouts_per_week"`
}

// Defaults returns the starting targets offered by `vitals goals init`.
func Defaults() Goals {
	return Goals{
		WeightKg:        75.0,
		DailySteps:      10000,
		SleepHours:      7.0,
		WorkoutsPerWeek: 3,
	}
}

// Filename is the goals file name inside the data directory.
const Filename = "goals.yaml"

// Path returns the goals file location for a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, Filename)
}

// Load reads goals from the data directory. A missing file yields
// unconfigured goals and no error.
func Load(dataDir string) (Goals, error) {
	data, err := os.ReadFile(Path(dataDir))
	if os.IsNotExist(err) {
		return Goals{}, nil
	}
	if err != nil {
		return Goals{}, fmt.Errorf("failed to read goals file: %w", err)
	}

	g := Defaults()
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Goals{}, fmt.Errorf("failed to parse goals file: %w", err)
	}

	g.Configured = true
	return g, nil
}

// Save writes goals atomically (temp file then rename).
func Save(dataDir string, g Goals) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal goals: %w", err)
	}

	path := Path(dataDir)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write goals file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace goals file: %w", err)
	}
	return nil
}
