package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExtractCommand(tools *toolFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract a single stream from a media file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "video <input> <output>",
		Short: "Copy the video stream, dropping audio",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFile(cmd.Context(), tools, args[0], true)
			if err != nil {
				return err
			}
			defer f.Close()

			err = f.ExtractVideo(cmd.Context(), args[1])
			finishProgress()
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "audio <input> <output>",
		Short: "Re-encode the audio stream into its own file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFile(cmd.Context(), tools, args[0], true)
			if err != nil {
				return err
			}
			defer f.Close()

			err = f.ExtractAudio(cmd.Context(), args[1])
			finishProgress()
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", args[1])
			return nil
		},
	})

	return cmd
}
