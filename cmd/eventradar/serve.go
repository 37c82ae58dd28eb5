package main

import (
	"context"

	"github.com/FranksOps/eventradar/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		a, err := newApp(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(server.Config{
			Addr:    cfg.Server.Addr,
			Backend: a.backend,
			Runner:  a.service,
			Cities:  a.cities,
			Logger:  logger,
		})

		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}
