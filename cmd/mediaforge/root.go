package main

import (
	"github.com/spf13/cobra"
)

// toolFlags carries the binary overrides shared by every subcommand.
type toolFlags struct {
	ffmpeg  string
	ffprobe string
}

func newRootCommand() *cobra.Command {
	tools := &toolFlags{}

	rootCmd := &cobra.Command{
		Use:           "mediaforge",
		Short:         "Convert, inspect, and assemble media files with ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&tools.ffmpeg, "ffmpeg", "", "Path to the ffmpeg binary (default: search PATH)")
	rootCmd.PersistentFlags().StringVar(&tools.ffprobe, "ffprobe", "", "Path to the ffprobe binary (default: search PATH)")

	rootCmd.AddCommand(newProbeCommand(tools))
	rootCmd.AddCommand(newConvertCommand(tools))
	rootCmd.AddCommand(newExtractCommand(tools))
	rootCmd.AddCommand(newSnapshotCommand(tools))
	rootCmd.AddCommand(newJoinCommand(tools))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
