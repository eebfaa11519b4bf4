// Package config loads vitals configuration with documented defaults.
//
// Configuration lives at $XDG_CONFIG_HOME/vitals/config.yaml (falling back
// to ~/.config/vitals). Every value has a default; malformed values fall
// back to the default with a logged warning and never abort a sync.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Defaults for every recognized option.
const (
	DefaultIntervalMinutes      = 10
	DefaultChangeThresholdSteps = 100
	DefaultWakingHoursStart     = 7
	DefaultWakingHoursEnd       = 23
	DefaultSafetyOverlapDays    = 3
	DefaultHistoryDays          = 2190
	DefaultFetchTimeoutSeconds  = 30
	DefaultDashboardPort        = 8080
	DefaultLogMaxSizeMB         = 10
	DefaultLogMaxBackups        = 3
)

// Config is the materialized configuration passed into the coordinator and
// analytics at construction. No component reads viper after Load returns.
type Config struct {
	DataDir   string
	Sync      Sync
	Remote    Remote
	Log       Log
	Dashboard Dashboard
	Daemon    Daemon
}

// Sync holds the knobs governing sync planning and notification gating.
type Sync struct {
	// Interval is the minimum spacing between syncs of one kind.
	Interval time.Duration

	// ChangeThresholdSteps is the minimum absolute step delta that counts
	// as notification-worthy. Smaller changes are still merged.
	ChangeThresholdSteps int

	// WakingHoursStart/End bound the alerting window (24h clock). Outside
	// it, sync still runs but step alerts are suppressed.
	WakingHoursStart int
	WakingHoursEnd   int

	// SafetyOverlap is re-fetched behind the last seen remote timestamp to
	// catch backfilled or revised entries.
	SafetyOverlap time.Duration

	// HistoryWindow bounds the bootstrap fetch for a kind with no local
	// history.
	HistoryWindow time.Duration

	// FetchTimeout bounds each remote call.
	FetchTimeout time.Duration
}

// WithinWakingHours reports whether t falls inside the alerting window.
func (s Sync) WithinWakingHours(t time.Time) bool {
	hour := t.Hour()
	return hour >= s.WakingHoursStart && hour <= s.WakingHoursEnd
}

// Remote locates the remote metric service.
type Remote struct {
	BaseURL   string
	TokenFile string
}

// Log configures the rotating daemon log file.
type Log struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Dashboard configures the WebSocket status server.
type Dashboard struct {
	Port int
}

// Daemon configures the background sync host.
type Daemon struct {
	// Schedule overrides the interval-derived cron spec when set (e.g.
	// "*/15 7-23 * * *" to sync only during the day).
	Schedule string
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		DataDir: filepath.Join(homeDir(), "Health", "vitals"),
		Sync: Sync{
			Interval:             DefaultIntervalMinutes * time.Minute,
			ChangeThresholdSteps: DefaultChangeThresholdSteps,
			WakingHoursStart:     DefaultWakingHoursStart,
			WakingHoursEnd:       DefaultWakingHoursEnd,
			SafetyOverlap:        DefaultSafetyOverlapDays * 24 * time.Hour,
			HistoryWindow:        DefaultHistoryDays * 24 * time.Hour,
			FetchTimeout:         DefaultFetchTimeoutSeconds * time.Second,
		},
		Remote: Remote{
			BaseURL:   "https://connectapi.garmin.com",
			TokenFile: filepath.Join(cacheDir(), "token"),
		},
		Log: Log{
			File:       filepath.Join(cacheDir(), "vitals.log"),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
		Dashboard: Dashboard{Port: DefaultDashboardPort},
	}
}

// Load reads the config file and environment into a Config. A missing file
// is not an error; malformed values are replaced by defaults with a
// warning through logger.
func Load(logger *log.Logger) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())
	v.SetEnvPrefix("VITALS")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !asConfigNotFound(err, &notFound) {
			// Unreadable config is a warning, not a failure: the sync path
			// must keep working on defaults.
			logger.Printf("WARNING: could not read config: %v (using defaults)", err)
		}
	}

	return fromViper(v, logger), nil
}

func asConfigNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	if cfnf, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = cfnf
		return true
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", Default().DataDir)
	v.SetDefault("sync.interval_minutes", DefaultIntervalMinutes)
	v.SetDefault("sync.change_threshold_steps", DefaultChangeThresholdSteps)
	v.SetDefault("sync.waking_hours_start", DefaultWakingHoursStart)
	v.SetDefault("sync.waking_hours_end", DefaultWakingHoursEnd)
	v.SetDefault("sync.safety_overlap_days", DefaultSafetyOverlapDays)
	v.SetDefault("sync.history_days", DefaultHistoryDays)
	v.SetDefault("sync.fetch_timeout_seconds", DefaultFetchTimeoutSeconds)
	v.SetDefault("remote.base_url", Default().Remote.BaseURL)
	v.SetDefault("remote.token_file", Default().Remote.TokenFile)
	v.SetDefault("log.file", Default().Log.File)
	v.SetDefault("log.max_size_mb", DefaultLogMaxSizeMB)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("dashboard.port", DefaultDashboardPort)
	v.SetDefault("daemon.schedule", "")
}

func fromViper(v *viper.Viper, logger *log.Logger) Config {
	cfg := Default()

	cfg.DataDir = v.GetString("data.dir")
	cfg.Remote.BaseURL = v.GetString("remote.base_url")
	cfg.Remote.TokenFile = v.GetString("remote.token_file")
	cfg.Log.File = v.GetString("log.file")
	cfg.Log.MaxSizeMB = positiveInt(v, "log.max_size_mb", DefaultLogMaxSizeMB, logger)
	cfg.Log.MaxBackups = positiveInt(v, "log.max_backups", DefaultLogMaxBackups, logger)
	cfg.Dashboard.Port = positiveInt(v, "dashboard.port", DefaultDashboardPort, logger)
	cfg.Daemon.Schedule = v.GetString("daemon.schedule")

	cfg.Sync.Interval = time.Duration(positiveInt(v, "sync.interval_minutes", DefaultIntervalMinutes, logger)) * time.Minute
	cfg.Sync.ChangeThresholdSteps = nonNegativeInt(v, "sync.change_threshold_steps", DefaultChangeThresholdSteps, logger)
	cfg.Sync.SafetyOverlap = time.Duration(nonNegativeInt(v, "sync.safety_overlap_days", DefaultSafetyOverlapDays, logger)) * 24 * time.Hour
	cfg.Sync.HistoryWindow = time.Duration(positiveInt(v, "sync.history_days", DefaultHistoryDays, logger)) * 24 * time.Hour
	cfg.Sync.FetchTimeout = time.Duration(positiveInt(v, "sync.fetch_timeout_seconds", DefaultFetchTimeoutSeconds, logger)) * time.Second

	start, startErr := cast.ToIntE(v.Get("sync.waking_hours_start"))
	end, endErr := cast.ToIntE(v.Get("sync.waking_hours_end"))
	if startErr != nil || endErr != nil || start < 0 || start > 23 || end < 0 || end > 23 || start > end {
		logger.Printf("WARNING: invalid waking hours %d-%d, using defaults %d-%d",
			start, end, DefaultWakingHoursStart, DefaultWakingHoursEnd)
		start, end = DefaultWakingHoursStart, DefaultWakingHoursEnd
	}
	cfg.Sync.WakingHoursStart = start
	cfg.Sync.WakingHoursEnd = end

	return cfg
}

// positiveInt parses key strictly: a non-numeric value must fall back
// with a warning, not coerce to 0.
func positiveInt(v *viper.Viper, key string, fallback int, logger *log.Logger) int {
	val, err := cast.ToIntE(v.Get(key))
	if err != nil || val <= 0 {
		logger.Printf("WARNING: invalid %s=%v, using default %d", key, v.Get(key), fallback)
		return fallback
	}
	return val
}

// nonNegativeInt is positiveInt for keys where 0 is a legal value.
func nonNegativeInt(v *viper.Viper, key string, fallback int, logger *log.Logger) int {
	val, err := cast.ToIntE(v.Get(key))
	if err != nil || val < 0 {
		logger.Printf("WARNING: invalid %s=%v, using default %d", key, v.Get(key), fallback)
		return fallback
	}
	return val
}

// ConfigDir returns the XDG-compliant configuration directory.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vitals")
	}
	return filepath.Join(homeDir(), ".config", "vitals")
}

func cacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "vitals")
	}
	return filepath.Join(homeDir(), ".cache", "vitals")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Describe renders the effective configuration for `vitals config`.
func (c Config) Describe() string {
	return fmt.Sprintf(`data.dir                    %s
sync.interval_minutes       %d
sync.change_threshold_steps %d
sync.waking_hours           %02d:00-%02d:00
sync.safety_overlap_days    %d
sync.history_days           %d
sync.fetch_timeout_seconds  %d
remote.base_url             %s
dashboard.port              %d`,
		c.DataDir,
		int(c.Sync.Interval.Minutes()),
		c.Sync.ChangeThresholdSteps,
		c.Sync.WakingHoursStart, c.Sync.WakingHoursEnd,
		int(c.Sync.SafetyOverlap.Hours()/24),
		int(c.Sync.HistoryWindow.Hours()/24),
		int(c.Sync.FetchTimeout.Seconds()),
		c.Remote.BaseURL,
		c.Dashboard.Port)
}
