package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitals-app/vitals/internal/syncer"
	"github.com/vitals-app/vitals/internal/ui"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Fetch new metric data from the remote service",
	Long: `Run one sync cycle: plan the minimal fetch window per metric kind,
fetch it, and merge the results into the local series files.

Kinds synced within the last interval are skipped unless --force is
given. One kind failing (rate limit, network) never blocks the others.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := log.New(os.Stderr, "", 0)
		st := openStore(cfg, logger)
		coordinator := newCoordinator(cfg, st, logger)

		start := time.Now()
		result, err := coordinator.Sync(context.Background(), syncForce)
		if errors.Is(err, syncer.ErrSyncInProgress) {
			fatalf("another sync is already running")
		}
		if err != nil {
			fatalf("sync failed: %v", err)
		}

		for _, kr := range result.Kinds {
			switch kr.Status {
			case syncer.StatusDone:
				marker := ui.OK("✓")
				detail := fmt.Sprintf("%d changed", kr.Changed)
				if kr.Bootstrap {
					detail += " (bootstrap)"
				}
				fmt.Printf("%s %-13s %s\n", marker, kr.Kind, ui.Dim(detail))
			case syncer.StatusSkipped:
				fmt.Printf("%s %-13s %s\n", ui.Dim("-"), kr.Kind, ui.Dim("fresh, skipped"))
			case syncer.StatusFailed:
				fmt.Printf("%s %-13s %s\n", ui.Fail("✗"), kr.Kind, kr.Error)
			}
		}

		fmt.Printf("\n%d record(s) changed in %v\n",
			result.Changed(), time.Since(start).Round(time.Millisecond))
		if result.NotificationWorthy {
			fmt.Printf("%s steps changed by %d today\n", ui.OK("!"), result.StepsDelta)
		}
		if len(result.Failed()) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "sync even if recently synced")
	rootCmd.AddCommand(syncCmd)
}
