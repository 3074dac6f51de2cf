package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fmpfmp/mediaforge/pkg/engine"
	"github.com/fmpfmp/mediaforge/pkg/media"
	"github.com/fmpfmp/mediaforge/pkg/mediafile"
	"github.com/fmpfmp/mediaforge/pkg/prober"
)

func newConvertCommand(tools *toolFlags) *cobra.Command {
	var (
		targetType   string
		speed        string
		size         string
		audioQuality string
		multithread  bool
	)

	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Transcode a media file into another container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := media.ParseTargetType(targetType)
			if err != nil {
				return err
			}

			f, err := openFile(cmd.Context(), tools, args[0], true)
			if err != nil {
				return err
			}
			defer f.Close()

			out, err := f.ConvertTo(cmd.Context(), args[1], media.ConvertOptions{
				Type:         target,
				Speed:        media.Speed(speed),
				Size:         media.SizePreset(size),
				AudioQuality: media.AudioQuality(audioQuality),
				Multithread:  multithread,
			})
			finishProgress()
			if err != nil {
				return err
			}

			fmt.Printf("Wrote %s (%.2f MB)\n", out.Path(), out.Info().SizeMB)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetType, "type", "t", "mp4", "Target type: mp4, webm, ts, or ogv")
	cmd.Flags().StringVar(&speed, "speed", "", "Encoder preset, veryslow through ultrafast")
	cmd.Flags().StringVar(&size, "size", "", "Output size preset (ntsc, pal, svga, hd480, hd720, hd1080)")
	cmd.Flags().StringVar(&audioQuality, "audio-quality", "", "Audio quality: low, normal, hd, or ultra")
	cmd.Flags().BoolVar(&multithread, "multithread", false, "Use all CPU cores")
	return cmd
}

// openFile opens path with the CLI's tool overrides. When showProgress is
// set, a progress line is rewritten in place as the operation advances.
func openFile(ctx context.Context, tools *toolFlags, path string, showProgress bool) (*mediafile.File, error) {
	var opts []mediafile.Option
	if tools.ffprobe != "" {
		opts = append(opts, mediafile.WithProber(prober.New(prober.WithFFprobePath(tools.ffprobe))))
	}
	if tools.ffmpeg != "" {
		opts = append(opts, mediafile.WithFFmpegPath(tools.ffmpeg))
	}
	if showProgress {
		opts = append(opts, mediafile.WithProgress(printProgress))
	}
	return mediafile.Open(ctx, path, opts...)
}

func printProgress(p engine.Progress) {
	if p.Percent > 0 {
		fmt.Fprintf(os.Stderr, "\r%5.1f%%  %s  speed=%.1fx", p.Percent, media.FormatTimecode(p.Time), p.Speed)
	} else {
		fmt.Fprintf(os.Stderr, "\r%s  speed=%.1fx", media.FormatTimecode(p.Time), p.Speed)
	}
}

// finishProgress terminates the in-place progress line.
func finishProgress() {
	fmt.Fprintln(os.Stderr)
}
