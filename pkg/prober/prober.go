// Package prober extracts media metadata by running ffprobe and parsing
// its JSON report into a media.Descriptor.
package prober

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/media"
)

const bytesPerMegabyte = 1024 * 1024

// Prober probes media files using ffprobe. It is stateless and safe for
// concurrent use.
type Prober struct {
	ffprobePath string
}

// Option is a functional option for Prober
type Option func(*Prober)

// WithFFprobePath sets a custom ffprobe binary path
func WithFFprobePath(path string) Option {
	return func(p *Prober) {
		p.ffprobePath = path
	}
}

// New creates a new Prober instance
func New(opts ...Option) *Prober {
	p := &Prober{
		ffprobePath: findFFprobe(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Probe runs ffprobe once against path and returns a populated descriptor.
// Missing fields are left at their zero values; a report with no recognizable
// stream information at all fails with media.ErrProbe.
func (p *Prober) Probe(ctx context.Context, path string) (*media.Descriptor, error) {
	if p.ffprobePath == "" {
		return nil, fmt.Errorf("%w: ffprobe not found in PATH", media.ErrProbe)
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%w: ffprobe exited: %s", media.ErrProbe, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%w: %v", media.ErrProbe, err)
	}

	return parseReport(path, output)
}

// findFFprobe locates ffprobe in PATH or the usual install locations.
func findFFprobe() string {
	candidates := []string{
		"ffprobe",
		"/usr/local/bin/ffprobe",
		"/opt/homebrew/bin/ffprobe",
		"/usr/bin/ffprobe",
	}

	for _, path := range candidates {
		if _, err := exec.LookPath(path); err == nil {
			return path
		}
	}

	return ""
}

// report mirrors the subset of ffprobe's JSON output the descriptor needs.
type report struct {
	Format  reportFormat   `json:"format"`
	Streams []reportStream `json:"streams"`
}

type reportFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type reportStream struct {
	CodecType          string `json:"codec_type"`
	CodecName          string `json:"codec_name"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	RFrameRate         string `json:"r_frame_rate"`
	DisplayAspectRatio string `json:"display_aspect_ratio"`
	Duration           string `json:"duration"`
}

// parseReport maps the raw ffprobe JSON onto a descriptor for path.
func parseReport(path string, data []byte) (*media.Descriptor, error) {
	var rep report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("%w: unparseable ffprobe report: %v", media.ErrProbe, err)
	}

	if len(rep.Streams) == 0 && rep.Format.Duration == "" {
		return nil, fmt.Errorf("%w: report contains no media stream information", media.ErrProbe)
	}

	desc := &media.Descriptor{
		Path:     path,
		Duration: parseSeconds(rep.Format.Duration),
		SizeMB:   float64(parseInt64(rep.Format.Size)) / bytesPerMegabyte,
	}

	for _, stream := range rep.Streams {
		switch stream.CodecType {
		case "video":
			if desc.VideoFormat != "" {
				continue
			}
			desc.VideoFormat = stream.CodecName
			desc.Width = stream.Width
			desc.Height = stream.Height
			desc.FrameRate = parseFrameRate(stream.RFrameRate)
			desc.Ratio = stream.DisplayAspectRatio
			if desc.Duration == 0 {
				desc.Duration = parseSeconds(stream.Duration)
			}
		case "audio":
			if desc.AudioFormat != "" {
				continue
			}
			desc.AudioFormat = stream.CodecName
			if desc.Duration == 0 {
				desc.Duration = parseSeconds(stream.Duration)
			}
		}
	}

	return desc, nil
}

// parseSeconds parses an ffprobe duration (seconds as decimal string).
// "N/A" and malformed values fall back to zero rather than failing the probe.
func parseSeconds(s string) time.Duration {
	if s == "" || s == "N/A" {
		return 0
	}

	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return v
}

// parseFrameRate parses ffprobe's fractional frame rate ("30000/1001").
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}

	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		rate, _ := strconv.ParseFloat(s, 64)
		return rate
	}

	numerator, err1 := strconv.ParseFloat(parts[0], 64)
	denominator, err2 := strconv.ParseFloat(parts[1], 64)

	if err1 != nil || err2 != nil || denominator == 0 {
		return 0
	}

	return numerator / denominator
}
