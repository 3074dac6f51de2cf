// Package media defines the shared media types: the probed file descriptor,
// conversion option enums and their argument mappings, and the error kinds
// surfaced by the engine and façade.
package media

import (
	"fmt"
	"time"
)

// Descriptor holds the last-known probed attributes of one media file.
// Path is set at construction and never reassigned; the remaining fields
// are written once by the prober.
type Descriptor struct {
	Path string `json:"path"`

	Duration    time.Duration `json:"duration"`
	AudioFormat string        `json:"audio_format,omitempty"`
	VideoFormat string        `json:"video_format,omitempty"`
	Ratio       string        `json:"ratio,omitempty"`
	FrameRate   float64       `json:"frame_rate"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`

	// SizeMB is the container size in megabytes as reported by the probe.
	SizeMB float64 `json:"size_mb"`
}

// HasVideo reports whether the probe found a video stream.
func (d *Descriptor) HasVideo() bool {
	return d.VideoFormat != ""
}

// HasAudio reports whether the probe found an audio stream.
func (d *Descriptor) HasAudio() bool {
	return d.AudioFormat != ""
}

// Resolution returns the pixel dimensions as "WxH", or "" if there is no video stream.
func (d *Descriptor) Resolution() string {
	if d.Width == 0 && d.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (video: %s, audio: %s, %s, %s)",
		d.Path, orNone(d.VideoFormat), orNone(d.AudioFormat),
		d.Resolution(), d.Duration)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
