package engine

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/media"
)

// convertArgs builds the argument set for a full format conversion.
// All option validation happens here, before any process is spawned.
func convertArgs(input, output string, opts media.ConvertOptions) ([]string, error) {
	codec, err := opts.Type.Args()
	if err != nil {
		return nil, err
	}
	speed, err := opts.Speed.Args()
	if err != nil {
		return nil, err
	}
	size, err := opts.Size.Args()
	if err != nil {
		return nil, err
	}
	audio, err := opts.AudioQuality.Args()
	if err != nil {
		return nil, err
	}

	args := []string{"-i", input}
	args = append(args, codec...)
	args = append(args, speed...)
	args = append(args, size...)
	args = append(args, audio...)

	threads := 1
	if opts.Multithread {
		threads = runtime.NumCPU()
	}
	args = append(args, "-threads", strconv.Itoa(threads))

	return append(args, "-y", output), nil
}

// extractVideoArgs copies the video stream into output, dropping audio.
func extractVideoArgs(input, output string) []string {
	return []string{"-i", input, "-an", "-c:v", "copy", "-y", output}
}

// extractAudioArgs drops video and lets the output extension pick the
// audio codec.
func extractAudioArgs(input, output string) []string {
	return []string{"-i", input, "-vn", "-y", output}
}

// addAudioArgs muxes the first video stream of video with the first audio
// stream of audio. The video stream is copied untouched.
func addAudioArgs(video, audio, output string) []string {
	return []string{
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		"-y", output,
	}
}

// snapshotArgs captures a single frame at the given instant as an image file.
func snapshotArgs(input, output string, size media.SizePreset, at time.Duration) ([]string, error) {
	sizeFragment, err := size.Args()
	if err != nil {
		return nil, err
	}

	args := []string{
		"-ss", media.FormatTimecode(at),
		"-i", input,
		"-vframes", "1",
	}
	args = append(args, sizeFragment...)
	return append(args, "-f", "image2", "-y", output), nil
}

// joinArgs concatenates the inputs, in the given order, into one continuous
// output via the concat filter.
func joinArgs(output string, inputs []string) ([]string, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("%w: join needs at least two inputs, got %d", media.ErrUnsupported, len(inputs))
	}

	args := make([]string, 0, 2*len(inputs)+8)
	for _, input := range inputs {
		args = append(args, "-i", input)
	}

	filter := fmt.Sprintf("concat=n=%d:v=1:a=1 [v] [a]", len(inputs))
	args = append(args,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-y", output,
	)

	return args, nil
}
