package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitals-app/vitals/internal/analytics"
	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/ui"
)

var patternsDays int

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var patternsCmd = &cobra.Command{
	Use:     "patterns <kind>",
	GroupID: "reports",
	Short:   "Show a metric's average by day of week",
	Long: `Average one metric by day of week over a trailing window, revealing
weekly rhythms (weekend long runs, weekday sleep debt).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := metric.ParseKind(args[0])
		if err != nil {
			fatalf("%v", err)
		}

		cfg := loadConfig()
		st := openStore(cfg, log.New(os.Stderr, "", 0))
		engine := analytics.New(st, cfg.DataDir)

		pattern, err := engine.Pattern(kind, patternsDays, time.Now())
		if errors.Is(err, analytics.ErrInsufficientData) {
			fmt.Printf("Not enough %s data in the last %d day(s).\n", kind, patternsDays)
			return
		}
		if err != nil {
			fatalf("computing pattern: %v", err)
		}

		fmt.Printf("%s\n\n", ui.Title(fmt.Sprintf("%s by day of week, last %d days", kind, patternsDays)))

		unit := analytics.Unit(kind)
		fmt.Print(ui.BarChart(weekdayLabels, pattern.Values[:], 30, func(v float64) string {
			return fmt.Sprintf("%.1f %s", v, unit)
		}))
	},
}

func init() {
	patternsCmd.Flags().IntVar(&patternsDays, "days", 28, "trailing window in days")
	rootCmd.AddCommand(patternsCmd)
}
