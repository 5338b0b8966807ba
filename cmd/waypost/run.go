package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/traverse-labs/waypost/internal/guard"
	"github.com/traverse-labs/waypost/internal/ingest"
	"github.com/traverse-labs/waypost/internal/notify"
	"github.com/traverse-labs/waypost/internal/transmit"
)

// guardMaxHold bounds how long a wedged cycle can delay shutdown.
const guardMaxHold = 10 * time.Minute

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the delivery daemon: ingest fixes, transmit batches on schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ntfyCfg := notify.LoadConfig()
			if err := ntfyCfg.Validate(); err != nil {
				return err
			}
			notifier := notify.New(ntfyCfg, logger)

			shutdown := guard.NewShutdown(guardMaxHold, logger)
			engine := buildEngine(cfg, st, shutdown, func(result transmit.CycleResult) {
				notifier.CycleDone(context.Background(), result)
			}, logger)

			if len(cfg.Endpoints) == 0 {
				logger.Warn("no endpoints configured, fixes will buffer without transmitting")
			}

			logger.Info("daemon started",
				zap.Int("endpoints", len(cfg.Endpoints)),
				zap.Duration("interval", cfg.TransmissionInterval()),
				zap.Duration("tick", cfg.Tick()),
				zap.String("storage", cfg.Storage.Path),
			)

			var srv *http.Server
			if cfg.Ingest.Enabled {
				srv = &http.Server{
					Addr:    cfg.Ingest.Addr,
					Handler: ingest.NewServer(engine, st, logger).Router(),
				}
				go func() {
					logger.Info("ingest server listening", zap.String("addr", cfg.Ingest.Addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("ingest server failed", zap.Error(err))
					}
				}()
			}

			// Periodic trigger: a stale backlog drains even when no new
			// fixes arrive to run the post-append check.
			ticker := time.NewTicker(cfg.Tick())
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					engine.TriggerIfStale(ctx)

				case <-ctx.Done():
					logger.Info("shutting down")
					if srv != nil {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						_ = srv.Shutdown(shutdownCtx)
						cancel()
					}
					// Let any in-flight cycle finish before the store closes.
					shutdown.Wait()
					logger.Info("daemon stopped")
					return nil
				}
			}
		},
	}
}
