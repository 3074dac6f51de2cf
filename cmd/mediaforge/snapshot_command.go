package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fmpfmp/mediaforge/pkg/media"
)

func newSnapshotCommand(tools *toolFlags) *cobra.Command {
	var (
		at   string
		size string
	)

	cmd := &cobra.Command{
		Use:   "snapshot <input> <output>",
		Short: "Capture a single frame as an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var instant time.Duration
			if at != "" {
				parsed, err := media.ParseDuration(at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				instant = parsed
			}

			f, err := openFile(cmd.Context(), tools, args[0], false)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := f.Snapshot(cmd.Context(), args[1], media.SizePreset(size), instant); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", `Capture instant: "00:01:30.500" or "90s" (default: start)`)
	cmd.Flags().StringVar(&size, "size", "", "Image size preset (ntsc, pal, svga, hd480, hd720, hd1080)")
	return cmd
}
