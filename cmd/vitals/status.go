package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/syncer"
	"github.com/vitals-app/vitals/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show per-kind data freshness and the last sync outcome",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg, log.New(os.Stderr, "", 0))
		now := time.Now()

		fmt.Printf("%s\n\n", ui.Title("Data freshness"))
		for _, kind := range metric.Kinds() {
			state, ok, err := st.Freshness(kind)
			if err != nil {
				fatalf("reading freshness: %v", err)
			}
			if !ok {
				fmt.Printf("  %-13s %s\n", kind, ui.Warn("never synced"))
				continue
			}

			age := state.Age(now).Round(time.Minute)
			line := fmt.Sprintf("synced %s ago", age)
			if !state.LastRemoteSeen.IsZero() {
				line += ui.Dim(fmt.Sprintf("  (data through %s)",
					state.LastRemoteSeen.Format("2006-01-02")))
			}
			fmt.Printf("  %-13s %s\n", kind, line)
		}

		result, ok, err := syncer.LoadLastResult(cfg.DataDir)
		if err != nil {
			fatalf("reading last sync result: %v", err)
		}
		if !ok {
			return
		}

		fmt.Printf("\n%s\n\n", ui.Title("Last sync"))
		fmt.Printf("  finished  %s\n", result.FinishedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  changed   %d record(s)\n", result.Changed())
		for _, kr := range result.Failed() {
			fmt.Printf("  %s %s failed (%s): %s\n", ui.Fail("✗"), kr.Kind, kr.Reason, kr.Error)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
