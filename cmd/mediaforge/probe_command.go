package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fmpfmp/mediaforge/pkg/media"
	"github.com/fmpfmp/mediaforge/pkg/prober"
)

func newProbeCommand(tools *toolFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Inspect a media file's streams and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []prober.Option
			if tools.ffprobe != "" {
				opts = append(opts, prober.WithFFprobePath(tools.ffprobe))
			}

			desc, err := prober.New(opts...).Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(os.Stdout, desc)
			}

			fmt.Println(renderTable(
				[]string{"Property", "Value"},
				describeRows(desc),
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the descriptor as JSON")
	return cmd
}

func describeRows(desc *media.Descriptor) [][]string {
	rows := [][]string{
		{"Path", desc.Path},
		{"Duration", media.FormatTimecode(desc.Duration)},
	}
	if desc.HasVideo() {
		rows = append(rows,
			[]string{"Video codec", desc.VideoFormat},
			[]string{"Resolution", desc.Resolution()},
			[]string{"Frame rate", strconv.FormatFloat(desc.FrameRate, 'f', -1, 64)},
		)
		if desc.Ratio != "" {
			rows = append(rows, []string{"Aspect ratio", desc.Ratio})
		}
	}
	if desc.HasAudio() {
		rows = append(rows, []string{"Audio codec", desc.AudioFormat})
	}
	rows = append(rows, []string{"Size", fmt.Sprintf("%.2f MB", desc.SizeMB)})
	return rows
}
