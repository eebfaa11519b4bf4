package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitals-app/vitals/internal/cache"
	"github.com/vitals-app/vitals/internal/dashboard"
)

var dashboardPort int

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Serve the status dashboard without syncing",
	Long: `Start only the WebSocket dashboard server, serving the current cache
contents. Useful next to a separately scheduled 'vitals sync' (cron,
launchd) when the full daemon is not wanted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if dashboardPort != 0 {
			cfg.Dashboard.Port = dashboardPort
		}
		logger := log.New(os.Stderr, "[dashboard] ", log.LstdFlags)

		cacheDB, err := cache.Open(filepath.Join(cfg.DataDir, cache.Filename))
		if err != nil {
			fatalf("opening cache: %v", err)
		}
		defer cacheDB.Close()

		srv := dashboard.NewServer(&dashboard.Config{Port: cfg.Dashboard.Port, Logger: logger})
		if err := srv.Start(); err != nil {
			fatalf("starting dashboard: %v", err)
		}
		defer srv.Stop()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Push the current freshness view to anyone who connects early.
		if summary, err := cacheDB.Summary(ctx); err == nil {
			if msg, err := dashboard.FreshnessMessage(summary); err == nil {
				srv.Broadcast(msg)
			}
		}

		fmt.Printf("Dashboard: http://localhost:%d (Ctrl+C to stop)\n", cfg.Dashboard.Port)
		<-ctx.Done()
	},
}

func init() {
	dashboardCmd.Flags().IntVar(&dashboardPort, "port", 0, "override dashboard.port from config")
	rootCmd.AddCommand(dashboardCmd)
}
