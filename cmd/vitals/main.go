// Command vitals keeps a local snapshot of your health metrics and
// answers questions about it.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitals-app/vitals/internal/config"
	"github.com/vitals-app/vitals/internal/remote"
	"github.com/vitals-app/vitals/internal/store"
	"github.com/vitals-app/vitals/internal/syncer"
)

var rootCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Local sync and analytics for your health metrics",
	Long: `vitals maintains a local, append-only snapshot of your health metrics
(steps, sleep, weight, activities, body battery, stress) fetched from
your connected account, and answers questions about it offline.

The JSON series files under the data directory are the source of truth.
Syncs are incremental: only the window since the last seen remote data
(plus a safety overlap) is fetched.`,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Syncing:"},
		&cobra.Group{ID: "reports", Title: "Reports:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig reads the effective configuration, warning to stderr.
func loadConfig() config.Config {
	cfg, err := config.Load(log.New(os.Stderr, "", 0))
	if err != nil {
		fatalf("loading config: %v", err)
	}
	return cfg
}

func openStore(cfg config.Config, logger *log.Logger) *store.Store {
	st, err := store.Open(cfg.DataDir, logger)
	if err != nil {
		fatalf("opening data directory: %v", err)
	}
	return st
}

func newCoordinator(cfg config.Config, st *store.Store, logger *log.Logger) *syncer.Coordinator {
	client, err := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.TokenFile, logger)
	if err != nil {
		fatalf("remote client: %v\nPut your access token in %s", err, cfg.Remote.TokenFile)
	}
	return syncer.New(st, client, cfg.Sync, logger)
}

// daemonLogger writes to the rotating log file instead of stderr.
func daemonLogger(cfg config.Config, prefix string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}, prefix, log.LstdFlags)
}
