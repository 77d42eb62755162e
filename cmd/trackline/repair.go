package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

func newRepairCommand(configFlag *string) *cobra.Command {
	var songID string
	var albumScope string
	var artistScope string
	var one string

	cmd := &cobra.Command{
		Use:   "repair [num]",
		Short: "Run the repair passes over unresolved scrobbles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if songID != "" {
				return setSongID(ctx, cmd, app, songID, albumScope, artistScope, args)
			}
			if one != "" {
				return repairOne(ctx, cmd, app, one)
			}

			batch := app.cfg.Repair.BatchSize
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid batch size %q", args[0])
				}
				batch = n
			}

			for _, pass := range app.passes() {
				result, err := pass.Run(ctx, batch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s processed %d, fixed %d\n",
					pass.Name(), result.Processed, result.Fixed)
			}

			outstanding, err := app.scrobbles.OutstandingCounts(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "outstanding: %d artists, %d albums, %d songs\n",
				outstanding.Artists, outstanding.Albums, outstanding.Songs)
			return nil
		},
	}

	cmd.Flags().StringVar(&songID, "update-song", "", "Set this song MBID on records matching the title argument")
	cmd.Flags().StringVar(&albumScope, "album", "", "Album (release) MBID scope for --update-song")
	cmd.Flags().StringVar(&artistScope, "artist", "", "Artist MBID scope for --update-song")
	cmd.Flags().StringVar(&one, "one", "", "Re-resolve a single scrobble by id from its stored payload")
	return cmd
}

// setSongID applies a manual song id override: repair --update-song <mbid>
// --album <mbid> "<title>".
func setSongID(ctx context.Context, cmd *cobra.Command, app *app, songID, albumScope, artistScope string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("--update-song requires the raw song title as argument")
	}
	n, err := app.scrobbles.SetSongID(ctx, args[0], albumScope, artistScope, songID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated %d scrobbles\n", n)
	return nil
}

func repairOne(ctx context.Context, cmd *cobra.Command, app *app, id string) error {
	pass := app.songPass()
	if err := pass.RepairOne(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reprocessed %s\n", id)
	return nil
}
