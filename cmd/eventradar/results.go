package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/FranksOps/eventradar/internal/report"
	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/spf13/cobra"
)

var resultsFormat string

var resultsCmd = &cobra.Command{
	Use:   "results <run-id>",
	Short: "Show the day-by-day results of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer b.Close()

		days, err := report.Load(cmd.Context(), b, args[0])
		if err != nil {
			return err
		}
		return writeDays(resultsFormat, days)
	},
}

var (
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List past runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer b.Close()

		filter := storage.RunFilter{Status: storage.RunStatus(runsStatus), Limit: runsLimit}
		if runsStatus == "all" {
			filter.Status = ""
		}
		runs, err := b.ListRuns(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs")
			return nil
		}
		for _, r := range runs {
			fmt.Println(describe(r))
		}
		return nil
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace <run-id>",
	Short: "Print the diagnostic trace of a run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer b.Close()

		run, err := b.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if run.Trace == nil {
			return fmt.Errorf("run %s has no trace yet (status %s)", run.ID, run.Status)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Trace)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete runs with their events and weather",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer b.Close()

		var errs []error
		for _, id := range args {
			if err := b.DeleteRun(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			fmt.Println("deleted", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsFormat, "format", "o", "text", "output format (text, json, csv)")
	runsCmd.Flags().StringVar(&runsStatus, "status", string(storage.RunCompleted), "filter by status, or all")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
}
