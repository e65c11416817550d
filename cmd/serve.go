package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abhisek/tutorloop/internal/metrics"
	"github.com/abhisek/tutorloop/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, metrics and read-only session data over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		cfg := server.DefaultConfig()
		if d.cfg.Metrics.Addr != "" {
			cfg.Addr = d.cfg.Metrics.Addr
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr, _ = cmd.Flags().GetString("addr")
		}

		// Register collectors so /metrics exposes them before any run.
		metrics.New()

		srv := server.NewHTTPServer(cfg, server.Repos{
			Sessions:    d.st.SessionRepo(),
			Predictions: d.st.PredictionRepo(),
			Traces:      d.st.TraceRepo(),
		}, d.log)

		errCh := make(chan error, 1)
		go func() {
			d.log.Info("serving", zap.String("addr", cfg.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
		}

		d.log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", server.DefaultConfig().Addr, "Listen address")
}
