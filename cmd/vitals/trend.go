package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/vitals-app/vitals/internal/analytics"
	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/ui"
)

var (
	trendDays  int
	trendSince string
)

var trendCmd = &cobra.Command{
	Use:     "trend <kind>",
	GroupID: "reports",
	Short:   "Show a metric's trailing trend",
	Long: `Aggregate one metric per day over a trailing window and summarize it:
totals for counted kinds (steps, activity minutes), averages for level
kinds (weight, sleep, stress, body battery).

The window is --days N, or --since with a natural-language start like
"last monday" or "3 weeks ago".`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := metric.ParseKind(args[0])
		if err != nil {
			fatalf("%v", err)
		}

		now := time.Now()
		days := trendDays
		if trendSince != "" {
			days, err = daysSince(trendSince, now)
			if err != nil {
				fatalf("%v", err)
			}
		}

		cfg := loadConfig()
		st := openStore(cfg, log.New(os.Stderr, "", 0))
		engine := analytics.New(st, cfg.DataDir)

		trend, err := engine.TrendDays(kind, days, now)
		if errors.Is(err, analytics.ErrInsufficientData) {
			fmt.Printf("Not enough %s data in the last %d day(s).\n", kind, days)
			return
		}
		if err != nil {
			fatalf("computing trend: %v", err)
		}

		fmt.Printf("%s\n\n", ui.Title(fmt.Sprintf("%s, last %d days", kind, days)))

		labels := make([]string, len(trend.Points))
		values := make([]float64, len(trend.Points))
		for i, pt := range trend.Points {
			labels[i] = pt.Day.Format("Jan 02")
			values[i] = pt.Value
		}
		unit := analytics.Unit(kind)
		fmt.Print(ui.BarChart(labels, values, 30, func(v float64) string {
			return fmt.Sprintf("%.1f %s", v, unit)
		}))

		verb := "mean"
		if trend.Mode == analytics.ModeSum {
			verb = "total"
		}
		fmt.Printf("\n%s: %.1f %s over %d day(s) with data\n",
			verb, trend.Summary, unit, len(trend.Points))
	},
}

// daysSince turns a natural-language start ("last monday", "2 weeks
// ago") into a trailing day count.
func daysSince(expr string, now time.Time) (int, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(expr, now)
	if err != nil {
		return 0, fmt.Errorf("cannot parse --since %q: %w", expr, err)
	}
	if r == nil {
		return 0, fmt.Errorf("cannot parse --since %q", expr)
	}
	if r.Time.After(now) {
		return 0, fmt.Errorf("--since %q is in the future", expr)
	}

	days := int(now.Sub(r.Time).Hours()/24) + 1
	return days, nil
}

func init() {
	trendCmd.Flags().IntVar(&trendDays, "days", 7, "trailing window in days")
	trendCmd.Flags().StringVar(&trendSince, "since", "", `natural-language window start (e.g. "last monday")`)
	rootCmd.AddCommand(trendCmd)
}
