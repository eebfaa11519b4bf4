package config

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "vitals"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vitals", "config.yaml"), []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sync.Interval != DefaultIntervalMinutes*time.Minute {
		t.Errorf("Interval = %v, want %v", cfg.Sync.Interval, DefaultIntervalMinutes*time.Minute)
	}
	if cfg.Sync.ChangeThresholdSteps != DefaultChangeThresholdSteps {
		t.Errorf("ChangeThresholdSteps = %d, want %d", cfg.Sync.ChangeThresholdSteps, DefaultChangeThresholdSteps)
	}
}

func TestLoad_ReadsConfiguredValues(t *testing.T) {
	writeConfig(t, `
sync:
  interval_minutes: 30
  change_threshold_steps: 250
  safety_overlap_days: 7
dashboard:
  port: 9000
`)

	cfg, err := Load(log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sync.Interval != 30*time.Minute {
		t.Errorf("Interval = %v, want 30m", cfg.Sync.Interval)
	}
	if cfg.Sync.ChangeThresholdSteps != 250 {
		t.Errorf("ChangeThresholdSteps = %d, want 250", cfg.Sync.ChangeThresholdSteps)
	}
	if cfg.Sync.SafetyOverlap != 7*24*time.Hour {
		t.Errorf("SafetyOverlap = %v, want 168h", cfg.Sync.SafetyOverlap)
	}
	if cfg.Dashboard.Port != 9000 {
		t.Errorf("Dashboard.Port = %d, want 9000", cfg.Dashboard.Port)
	}
}

func TestLoad_MalformedValuesFallBackWithWarning(t *testing.T) {
	writeConfig(t, `
sync:
  interval_minutes: -5
  waking_hours_start: 25
  waking_hours_end: 3
`)

	var buf bytes.Buffer
	cfg, err := Load(log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sync.Interval != DefaultIntervalMinutes*time.Minute {
		t.Errorf("Interval = %v, want default", cfg.Sync.Interval)
	}
	if cfg.Sync.WakingHoursStart != DefaultWakingHoursStart || cfg.Sync.WakingHoursEnd != DefaultWakingHoursEnd {
		t.Errorf("waking hours = %d-%d, want defaults %d-%d",
			cfg.Sync.WakingHoursStart, cfg.Sync.WakingHoursEnd,
			DefaultWakingHoursStart, DefaultWakingHoursEnd)
	}
	if buf.Len() == 0 {
		t.Error("expected warnings for malformed values, got none")
	}
}

func TestLoad_NonNumericThresholdFallsBack(t *testing.T) {
	writeConfig(t, `
sync:
  change_threshold_steps: everything
`)

	var buf bytes.Buffer
	cfg, err := Load(log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// A non-numeric threshold must not coerce to 0, which would make every
	// positive steps delta notification-worthy.
	if cfg.Sync.ChangeThresholdSteps != DefaultChangeThresholdSteps {
		t.Errorf("ChangeThresholdSteps = %d, want default %d",
			cfg.Sync.ChangeThresholdSteps, DefaultChangeThresholdSteps)
	}
	if !strings.Contains(buf.String(), "change_threshold_steps") {
		t.Errorf("expected warning naming change_threshold_steps, log = %q", buf.String())
	}
}

func TestLoad_ZeroThresholdIsLegal(t *testing.T) {
	writeConfig(t, `
sync:
  change_threshold_steps: 0
`)

	cfg, err := Load(log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.ChangeThresholdSteps != 0 {
		t.Errorf("ChangeThresholdSteps = %d, want 0 kept as configured", cfg.Sync.ChangeThresholdSteps)
	}
}

func TestSync_WithinWakingHours(t *testing.T) {
	s := Sync{WakingHoursStart: 7, WakingHoursEnd: 23}

	tests := []struct {
		hour int
		want bool
	}{
		{hour: 3, want: false},
		{hour: 6, want: false},
		{hour: 7, want: true},
		{hour: 12, want: true},
		{hour: 23, want: true},
	}

	for _, tt := range tests {
		at := time.Date(2026, 3, 14, tt.hour, 30, 0, 0, time.Local)
		if got := s.WithinWakingHours(at); got != tt.want {
			t.Errorf("WithinWakingHours(%02d:30) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}
