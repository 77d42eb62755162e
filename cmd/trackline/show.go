package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ktrenholm/trackline/internal/mbid"
)

func newShowCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "show <song|artist|release> <mbid>",
		Short:     "Print one catalog entity as JSON",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"song", "artist", "release"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			kind, id := args[0], args[1]
			if !mbid.IsMBID(id) {
				return fmt.Errorf("%q is not a 36-char MBID", id)
			}

			entity, err := lookupEntity(ctx, app, kind, id)
			if err != nil {
				return err
			}
			if entity == nil {
				return fmt.Errorf("%s %s not found", kind, id)
			}

			out, err := json.MarshalIndent(entity, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}

// lookupEntity reads from the local catalog only; the resolver is not
// invoked, so show never makes remote calls.
func lookupEntity(ctx context.Context, app *app, kind, id string) (any, error) {
	switch kind {
	case "song":
		song, err := app.catalog.FindSong(ctx, id)
		if err != nil || song == nil {
			return nil, err
		}
		return song, nil
	case "artist":
		artist, err := app.catalog.FindArtist(ctx, id)
		if err != nil || artist == nil {
			return nil, err
		}
		return artist, nil
	case "release":
		release, err := app.catalog.FindRelease(ctx, id)
		if err != nil || release == nil {
			return nil, err
		}
		return release, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}
