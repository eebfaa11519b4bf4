package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitals-app/vitals/internal/analytics"
	"github.com/vitals-app/vitals/internal/cache"
	"github.com/vitals-app/vitals/internal/daemon"
	"github.com/vitals-app/vitals/internal/dashboard"
)

var daemonNoDashboard bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync on a schedule and serve the dashboard (foreground)",
	Long: `Run vitals as a foreground daemon: sync every configured interval,
refresh the derived SQLite cache after each cycle, watch the goals file
for edits, and broadcast status over the dashboard WebSocket.

Logs go to the rotating log file, not the terminal. Stop with Ctrl+C;
nothing is lost, the next sync resumes from the last seen remote data.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := daemonLogger(cfg, "[daemon] ")

		st := openStore(cfg, logger)
		coordinator := newCoordinator(cfg, st, logger)
		engine := analytics.New(st, cfg.DataDir)

		cacheDB, err := cache.Open(filepath.Join(cfg.DataDir, cache.Filename))
		if err != nil {
			fatalf("opening cache: %v", err)
		}
		defer cacheDB.Close()

		var dash *dashboard.Server
		if !daemonNoDashboard {
			dash = dashboard.NewServer(&dashboard.Config{Port: cfg.Dashboard.Port, Logger: logger})
			if err := dash.Start(); err != nil {
				fatalf("starting dashboard: %v", err)
			}
			defer dash.Stop()
			fmt.Printf("Dashboard: http://localhost:%d\n", cfg.Dashboard.Port)
		}

		d, err := daemon.New(coordinator, engine, cacheDB, dash, cfg.DataDir, &daemon.Config{
			Interval: cfg.Sync.Interval,
			Schedule: cfg.Daemon.Schedule,
			Debounce: daemon.DefaultConfig().Debounce,
			Logger:   logger,
		})
		if err != nil {
			fatalf("creating daemon: %v", err)
		}

		fmt.Printf("Syncing every %s. Press Ctrl+C to stop.\n", cfg.Sync.Interval)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fatalf("daemon stopped: %v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonNoDashboard, "no-dashboard", false, "disable the WebSocket dashboard")
	rootCmd.AddCommand(daemonCmd)
}
