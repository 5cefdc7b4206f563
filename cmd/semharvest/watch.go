package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func watchCmd(loadApp func() (*App, error)) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh continuously, re-running when rule packs change",
		Long: `Watch runs an initial refresh cycle, then watches the rule pack
directory and re-runs the cycle whenever packs change on disk. When
metrics.addr is configured, refresh metrics are served at /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr := app.cfg.Metrics.Addr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", app.metrics.Handler())
				server := &http.Server{Addr: addr, Handler: mux}
				go func() {
					app.logger.Info("metrics endpoint listening", slog.String("addr", addr))
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						app.logger.Error("metrics endpoint failed", slog.String("error", err.Error()))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = server.Shutdown(shutdownCtx)
				}()
			}

			runRefresh := func() {
				sources, err := app.Sources()
				if err != nil {
					app.logger.Warn("discover catalogs", slog.String("error", err.Error()))
					return
				}
				report, err := app.orchestrator.Refresh(ctx, sources)
				if err != nil {
					app.logger.Warn("refresh interrupted", slog.String("error", err.Error()))
					return
				}
				for _, rep := range report.Sorted() {
					if rep.Error != "" {
						app.logger.Warn("dataset refresh failed",
							slog.String("dataset", rep.Dataset),
							slog.String("error", rep.Error))
					}
				}
			}

			runRefresh()

			// Debounce bursts of fsnotify events from editors and sync tools.
			trigger := make(chan struct{}, 1)
			go func() {
				var timer *time.Timer
				for {
					select {
					case <-ctx.Done():
						return
					case <-trigger:
						if timer != nil {
							timer.Stop()
						}
						timer = time.AfterFunc(debounce, runRefresh)
					}
				}
			}()

			err = app.packs.Watch(ctx, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
			if errors.Is(err, context.Canceled) {
				fmt.Println("Shutting down.")
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "Delay between a pack change and the re-run")
	return cmd
}
