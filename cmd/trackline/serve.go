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

	"github.com/ktrenholm/trackline/internal/api"
	"github.com/ktrenholm/trackline/internal/database"
	"github.com/ktrenholm/trackline/internal/version"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when configured, the repair scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			app.logger.Info("starting trackline",
				slog.String("version", version.Version),
				slog.String("commit", version.Commit),
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			router := api.NewRouter(api.RouterDeps{
				Scrobbles: app.scrobbles,
				Catalog:   app.catalog,
				Logger:    app.logger,
				BasePath:  app.cfg.Server.BasePath,
			})

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", app.cfg.Server.Port),
				Handler:      router.Handler(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			if hours := app.cfg.Repair.IntervalHours; hours > 0 {
				go app.scheduler().Start(ctx, time.Duration(hours)*time.Hour)
			}

			maint := database.NewMaintenance(app.db, app.cfg.Database.Path, app.logger)
			go maint.StartScheduler(ctx, 24*time.Hour)

			errCh := make(chan error, 1)
			go func() {
				app.logger.Info("http server listening", slog.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			app.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
