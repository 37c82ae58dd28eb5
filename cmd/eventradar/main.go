// Command eventradar discovers competing events in a city for a date range
// and scores each day's weather for outdoor plans.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/eventradar/internal/config"
	"github.com/spf13/cobra"
)

var (
	v          = config.New()
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "eventradar",
	Short:         "Find competing events and weather outlooks for a city",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			return err
		}
		logger = cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (default ./eventradar.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("driver", "sqlite", "storage driver (sqlite, postgres)")
	pf.String("dsn", "eventradar.db", "storage DSN")
	for key, flag := range map[string]string{
		"log.level":      "log-level",
		"log.format":     "log-format",
		"storage.driver": "driver",
		"storage.dsn":    "dsn",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(runCmd, resultsCmd, runsCmd, traceCmd, deleteCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
