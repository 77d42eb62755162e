package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ktrenholm/trackline/internal/version"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "trackline",
		Short:         "Reconcile a scrobble history against the MusicBrainz catalog",
		Version:       fmt.Sprintf("%s (%s)", version.Version, version.Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newBackfillCommand(&configFlag))
	rootCmd.AddCommand(newRepairCommand(&configFlag))
	rootCmd.AddCommand(newRedirectCommand(&configFlag))
	rootCmd.AddCommand(newShowCommand(&configFlag))

	return rootCmd
}
