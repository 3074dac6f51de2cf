package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Progress is one structured progress event parsed from the ffmpeg
// progress stream.
type Progress struct {
	Frame   int           // Current frame number
	FPS     float64       // Encoding frames per second
	Time    time.Duration // Processed position in the media
	Size    int64         // Output size in bytes
	Bitrate float64       // Bitrate in kbits/s
	Speed   float64       // Encoding speed multiplier (1.0 = realtime)
	Percent float64       // Completion percentage, 0 when total duration is unknown
}

// ProgressFunc receives progress events while an operation runs.
type ProgressFunc func(Progress)

// progressParser extracts progress events from ffmpeg stderr lines.
type progressParser struct {
	totalDuration time.Duration
	frameRegex    *regexp.Regexp
	fpsRegex      *regexp.Regexp
	timeRegex     *regexp.Regexp
	sizeRegex     *regexp.Regexp
	bitrateRegex  *regexp.Regexp
	speedRegex    *regexp.Regexp
}

func newProgressParser(totalDuration time.Duration) *progressParser {
	return &progressParser{
		totalDuration: totalDuration,
		frameRegex:    regexp.MustCompile(`frame=\s*(\d+)`),
		fpsRegex:      regexp.MustCompile(`fps=\s*([\d.]+)`),
		timeRegex:     regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d{2})`),
		sizeRegex:     regexp.MustCompile(`size=\s*(\d+)kB`),
		bitrateRegex:  regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`),
		speedRegex:    regexp.MustCompile(`speed=\s*([\d.]+)x`),
	}
}

// parseLine parses a single stderr line. Returns nil for lines that carry
// no progress information.
func (pp *progressParser) parseLine(line string) *Progress {
	// Progress lines always carry a time= field; audio-only encodes omit frame=.
	if !strings.Contains(line, "time=") {
		return nil
	}

	progress := &Progress{}

	if matches := pp.frameRegex.FindStringSubmatch(line); len(matches) > 1 {
		frame, _ := strconv.Atoi(matches[1])
		progress.Frame = frame
	}

	if matches := pp.fpsRegex.FindStringSubmatch(line); len(matches) > 1 {
		fps, _ := strconv.ParseFloat(matches[1], 64)
		progress.FPS = fps
	}

	if matches := pp.timeRegex.FindStringSubmatch(line); len(matches) > 4 {
		hours, _ := strconv.Atoi(matches[1])
		minutes, _ := strconv.Atoi(matches[2])
		seconds, _ := strconv.Atoi(matches[3])
		centiseconds, _ := strconv.Atoi(matches[4])

		progress.Time = time.Duration(hours)*time.Hour +
			time.Duration(minutes)*time.Minute +
			time.Duration(seconds)*time.Second +
			time.Duration(centiseconds)*10*time.Millisecond
	} else {
		return nil
	}

	if matches := pp.sizeRegex.FindStringSubmatch(line); len(matches) > 1 {
		sizeKB, _ := strconv.ParseInt(matches[1], 10, 64)
		progress.Size = sizeKB * 1024
	}

	if matches := pp.bitrateRegex.FindStringSubmatch(line); len(matches) > 1 {
		bitrate, _ := strconv.ParseFloat(matches[1], 64)
		progress.Bitrate = bitrate
	}

	if matches := pp.speedRegex.FindStringSubmatch(line); len(matches) > 1 {
		speed, _ := strconv.ParseFloat(matches[1], 64)
		progress.Speed = speed
	}

	if pp.totalDuration > 0 {
		percent := float64(progress.Time) / float64(pp.totalDuration) * 100.0
		if percent > 100.0 {
			percent = 100.0
		}
		progress.Percent = percent
	}

	return progress
}
