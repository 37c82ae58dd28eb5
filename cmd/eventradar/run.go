package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/FranksOps/eventradar/internal/metrics"
	"github.com/FranksOps/eventradar/internal/pipeline"
	"github.com/FranksOps/eventradar/internal/report"
	"github.com/spf13/cobra"
)

var (
	runFrom     string
	runTo       string
	runSegments string
	runRadius   int
	runFormat   string
	runQuiet    bool
)

var runCmd = &cobra.Command{
	Use:   "run <city-id>",
	Short: "Discover events and weather for a city and date range",
	Long: `Runs the full discovery pipeline for a configured city. --to is exclusive:
--from 2026-11-06 --to 2026-11-09 covers Friday to Sunday.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.Metrics.Port > 0 {
			ms := metrics.Start(cfg.Metrics.Port, logger)
			defer func() { _ = ms.Stop(context.Background()) }()
		}

		var bar pipeline.ProgressFunc
		if !runQuiet {
			bar = func(p pipeline.Progress) {
				fmt.Fprintf(os.Stderr, "[%3.0f%%] %-8s %s\n", p.Fraction*100, p.Stage, p.Message)
			}
		}
		a, err := newApp(ctx, cfg, logger, bar)
		if err != nil {
			return err
		}
		defer a.Close()

		var segments []string
		if runSegments != "" {
			segments = strings.Split(runSegments, ",")
		}
		id, err := a.service.Run(ctx, pipeline.Request{
			CityID:   args[0],
			DateFrom: runFrom,
			DateTo:   runTo,
			Segments: segments,
			RadiusKm: runRadius,
		})
		if err != nil {
			if id != "" {
				return fmt.Errorf("run %s: %w (inspect with: eventradar trace %s)", id, err, id)
			}
			return err
		}

		days, err := report.Load(ctx, a.backend, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "run %s complete\n", id)
		return writeDays(runFormat, days)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFrom, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&runTo, "to", "", "day after the last day, YYYY-MM-DD")
	f.StringVar(&runSegments, "segments", "", "comma-separated segments, e.g. techno,jazz")
	f.IntVar(&runRadius, "radius", 0, "search radius in km (default: city radius)")
	f.StringVarP(&runFormat, "format", "o", "text", "output format (text, json, csv)")
	f.BoolVarP(&runQuiet, "quiet", "q", false, "suppress the progress display")
	_ = runCmd.MarkFlagRequired("from")
	_ = runCmd.MarkFlagRequired("to")
}

func writeDays(format string, days []report.Day) error {
	switch format {
	case "json":
		return report.WriteJSON(os.Stdout, days)
	case "csv":
		return report.WriteCSV(os.Stdout, days)
	case "text":
		if err := report.WriteText(os.Stdout, days); err != nil {
			return err
		}
		s := report.Summarize(days)
		if s.Days > 0 {
			fmt.Printf("%d days, %d events, busiest %s, own events on %d days\n", s.Days, s.Events, s.BusiestDay, s.OwnEventDay)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
