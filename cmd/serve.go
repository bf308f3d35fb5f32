package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/api"
	"github.com/mediapulse/newscrawler/internal/scheduler"
)

const shutdownGrace = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the crawl scheduler.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFromContext(cmd.Context())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(a.Configs, a.Runner, a.Clock,
				a.Cfg.Scheduler.Tick(), a.Cfg.Scheduler.MaxConcurrent, a.Logger)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			server := api.NewServer(ctx, a.Configs, a.Tasks, a.Runner, a.Clock, a.Cfg, a.Logger)
			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.Logger.Info("http server listening", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				a.Logger.Info("shutdown signal received")
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				a.Logger.Warn("http shutdown incomplete", zap.Error(err))
			}
			return nil
		},
	}
}
