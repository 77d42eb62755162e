package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ktrenholm/trackline/internal/mbid"
)

func newRedirectCommand(configFlag *string) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "redirect <from> <to>",
		Short: "Force a redirect from an obsolete MBID and rewrite references",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if list {
				return listRedirects(ctx, cmd, app)
			}

			from, to := args[0], args[1]
			if !mbid.IsMBID(from) || !mbid.IsMBID(to) {
				return fmt.Errorf("both arguments must be 36-char MBIDs")
			}

			if err := app.redirects.RecordForced(ctx, from, to); err != nil {
				return err
			}
			n, err := app.redirects.RewriteAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "redirect recorded, %d references rewritten\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List all known redirects")
	return cmd
}

func listRedirects(ctx context.Context, cmd *cobra.Command, app *app) error {
	redirects, err := app.redirects.List(ctx)
	if err != nil {
		return err
	}
	for _, r := range redirects {
		marker := ""
		if r.Forced {
			marker = " (forced)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s%s\n", r.ObsoleteMBID, r.CurrentMBID, marker)
	}
	return nil
}
