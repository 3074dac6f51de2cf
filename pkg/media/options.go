package media

import "fmt"

// TargetType selects the output container and codec family for a conversion.
type TargetType string

const (
	TypeMP4  TargetType = "mp4"
	TypeWebM TargetType = "webm"
	TypeTS   TargetType = "ts"
	TypeOGV  TargetType = "ogv"
)

// targetArgs maps every target type to its codec argument fragment.
// The table is total over the constants above; anything else is rejected
// before a process is spawned.
var targetArgs = map[TargetType][]string{
	TypeMP4:  {"-c:v", "libx264", "-c:a", "aac"},
	TypeWebM: {"-c:v", "libvpx", "-c:a", "libvorbis"},
	TypeTS:   {"-c:v", "libx264", "-c:a", "aac", "-bsf:v", "h264_mp4toannexb", "-f", "mpegts"},
	TypeOGV:  {"-c:v", "libtheora", "-c:a", "libvorbis"},
}

// Args returns the codec argument fragment for the target type.
func (t TargetType) Args() ([]string, error) {
	args, ok := targetArgs[t]
	if !ok {
		return nil, fmt.Errorf("%w: target type %q", ErrUnsupported, string(t))
	}
	return args, nil
}

// Extension returns the file extension (with dot) for the target type.
func (t TargetType) Extension() (string, error) {
	if _, ok := targetArgs[t]; !ok {
		return "", fmt.Errorf("%w: target type %q", ErrUnsupported, string(t))
	}
	return "." + string(t), nil
}

// ParseTargetType validates a user-supplied target type string.
func ParseTargetType(s string) (TargetType, error) {
	t := TargetType(s)
	if _, ok := targetArgs[t]; !ok {
		return "", fmt.Errorf("%w: target type %q", ErrUnsupported, s)
	}
	return t, nil
}

// Speed is the encoder speed/compression trade-off preset.
type Speed string

const (
	SpeedVerySlow  Speed = "veryslow"
	SpeedSlower    Speed = "slower"
	SpeedSlow      Speed = "slow"
	SpeedMedium    Speed = "medium"
	SpeedFast      Speed = "fast"
	SpeedFaster    Speed = "faster"
	SpeedVeryFast  Speed = "veryfast"
	SpeedSuperFast Speed = "superfast"
	SpeedUltraFast Speed = "ultrafast"
)

var speedPresets = map[Speed]string{
	SpeedVerySlow:  "veryslow",
	SpeedSlower:    "slower",
	SpeedSlow:      "slow",
	SpeedMedium:    "medium",
	SpeedFast:      "fast",
	SpeedFaster:    "faster",
	SpeedVeryFast:  "veryfast",
	SpeedSuperFast: "superfast",
	SpeedUltraFast: "ultrafast",
}

// Args returns the preset argument fragment, or nil when unset.
func (s Speed) Args() ([]string, error) {
	if s == "" {
		return nil, nil
	}
	preset, ok := speedPresets[s]
	if !ok {
		return nil, fmt.Errorf("%w: speed %q", ErrUnsupported, string(s))
	}
	return []string{"-preset", preset}, nil
}

// SizePreset selects a fixed output resolution.
type SizePreset string

const (
	SizeNone   SizePreset = ""
	SizeNTSC   SizePreset = "ntsc"
	SizePAL    SizePreset = "pal"
	SizeSVGA   SizePreset = "svga"
	SizeHD480  SizePreset = "hd480"
	SizeHD720  SizePreset = "hd720"
	SizeHD1080 SizePreset = "hd1080"
)

var sizeValues = map[SizePreset]string{
	SizeNTSC:   "ntsc",
	SizePAL:    "pal",
	SizeSVGA:   "svga",
	SizeHD480:  "hd480",
	SizeHD720:  "hd720",
	SizeHD1080: "hd1080",
}

// Args returns the scaling argument fragment, or nil when unset.
func (s SizePreset) Args() ([]string, error) {
	if s == SizeNone {
		return nil, nil
	}
	value, ok := sizeValues[s]
	if !ok {
		return nil, fmt.Errorf("%w: size preset %q", ErrUnsupported, string(s))
	}
	return []string{"-s", value}, nil
}

// AudioQuality selects the output audio bitrate.
type AudioQuality string

const (
	AudioQualityDefault AudioQuality = ""
	AudioQualityLow     AudioQuality = "low"
	AudioQualityNormal  AudioQuality = "normal"
	AudioQualityHD      AudioQuality = "hd"
	AudioQualityUltra   AudioQuality = "ultra"
)

var audioBitrates = map[AudioQuality]string{
	AudioQualityLow:    "96k",
	AudioQualityNormal: "128k",
	AudioQualityHD:     "192k",
	AudioQualityUltra:  "320k",
}

// Args returns the audio bitrate argument fragment, or nil when unset.
func (q AudioQuality) Args() ([]string, error) {
	if q == AudioQualityDefault {
		return nil, nil
	}
	bitrate, ok := audioBitrates[q]
	if !ok {
		return nil, fmt.Errorf("%w: audio quality %q", ErrUnsupported, string(q))
	}
	return []string{"-b:a", bitrate}, nil
}

// ConvertOptions collects the knobs for a full format conversion.
// The zero value requests the encoder defaults for everything but the target type.
type ConvertOptions struct {
	Type         TargetType   `json:"type"`
	Speed        Speed        `json:"speed,omitempty"`
	Size         SizePreset   `json:"size,omitempty"`
	AudioQuality AudioQuality `json:"audio_quality,omitempty"`

	// Multithread enables encoding on all available cores; off means
	// ffmpeg's single-thread default.
	Multithread bool `json:"multithread,omitempty"`
}
