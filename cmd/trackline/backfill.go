package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newBackfillCommand(configFlag *string) *cobra.Command {
	var pageSize int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Pull the full listening history, oldest-first, until drained",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.cfg.LastFM.User == "" {
				return fmt.Errorf("lastfm user not configured (TL_LASTFM_USER)")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pipeline := app.pipeline()
			total := 0
			for {
				inserted, err := pipeline.Backfill(ctx, pageSize)
				if err != nil {
					return err
				}
				if inserted == 0 {
					break
				}
				total += inserted
				fmt.Fprintf(cmd.OutOrStdout(), "inserted %d scrobbles (%d total)\n", inserted, total)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backfill complete: %d scrobbles\n", total)
			return nil
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 200, "History items fetched per request")
	return cmd
}
