// Package mediafile is the per-file façade over the prober and the
// conversion engine. A File owns at most one engine and enforces the
// one-operation-at-a-time invariant for its media file.
package mediafile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/engine"
	"github.com/fmpfmp/mediaforge/pkg/media"
	"github.com/fmpfmp/mediaforge/pkg/prober"
)

// Prober populates a descriptor for a file path. Satisfied by
// prober.Prober; swappable for tests.
type Prober interface {
	Probe(ctx context.Context, path string) (*media.Descriptor, error)
}

// File represents one media file, its probed metadata, and at most one
// in-flight engine operation.
type File struct {
	desc *media.Descriptor

	prober     Prober
	ffmpegPath string
	onProgress engine.ProgressFunc

	mu  sync.Mutex
	eng *engine.Engine
}

// Option is a functional option for Open
type Option func(*File)

// WithProber replaces the default ffprobe-backed prober.
func WithProber(p Prober) Option {
	return func(f *File) {
		f.prober = p
	}
}

// WithFFmpegPath sets a custom ffmpeg binary path for this file's engine.
func WithFFmpegPath(path string) Option {
	return func(f *File) {
		f.ffmpegPath = path
	}
}

// WithProgress registers a progress observer. The observer is forwarded to
// the engine for the duration of each operation only; it never outlives a
// single call inside the engine.
func WithProgress(fn engine.ProgressFunc) Option {
	return func(f *File) {
		f.onProgress = fn
	}
}

// Open stats and probes path, returning a handle with populated metadata.
// A missing file fails with media.ErrNotFound before any process is spawned.
func Open(ctx context.Context, path string, opts ...Option) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", media.ErrNotFound, path)
	}

	f := &File{}
	for _, opt := range opts {
		opt(f)
	}
	if f.prober == nil {
		f.prober = prober.New()
	}

	desc, err := f.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	f.desc = desc

	return f, nil
}

// Path returns the file path this handle wraps.
func (f *File) Path() string {
	return f.desc.Path
}

// Info returns a copy of the probed descriptor.
func (f *File) Info() media.Descriptor {
	return *f.desc
}

// IsRunning reports whether an operation is in flight on this handle.
func (f *File) IsRunning() bool {
	f.mu.Lock()
	eng := f.eng
	f.mu.Unlock()
	return eng != nil && eng.IsRunning()
}

// acquire returns the handle's engine, creating it on first use. The same
// engine is reused for subsequent operations; its busy guard rejects a
// second concurrent start.
func (f *File) acquire() *engine.Engine {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.eng == nil {
		var engOpts []engine.Option
		if f.ffmpegPath != "" {
			engOpts = append(engOpts, engine.WithFFmpegPath(f.ffmpegPath))
		}
		f.eng = engine.New(engOpts...)
	}
	return f.eng
}

// runOpts scopes the handle's progress observer and source duration to one
// operation invocation.
func (f *File) runOpts() []engine.RunOption {
	opts := []engine.RunOption{engine.WithTotalDuration(f.desc.Duration)}
	if f.onProgress != nil {
		opts = append(opts, engine.WithProgress(f.onProgress))
	}
	return opts
}

// ConvertTo transcodes the file into the container selected by opts and
// returns a freshly probed handle for the output. The output path keeps the
// caller's directory and base name but always carries the target type's
// extension.
func (f *File) ConvertTo(ctx context.Context, outputPath string, opts media.ConvertOptions) (*File, error) {
	ext, err := opts.Type.Extension()
	if err != nil {
		return nil, err
	}
	outputPath = forceExtension(outputPath, ext)

	if err := f.acquire().Convert(ctx, f.desc, outputPath, opts, f.runOpts()...); err != nil {
		return nil, err
	}

	return f.reopen(ctx, outputPath)
}

// ExtractVideo writes the video stream, without audio, into outputPath.
func (f *File) ExtractVideo(ctx context.Context, outputPath string) error {
	return f.acquire().ExtractVideo(ctx, f.desc, outputPath, f.runOpts()...)
}

// ExtractAudio writes the audio stream into outputPath. A file without an
// audio stream fails with media.ErrConversionFailed when ffmpeg rejects it.
func (f *File) ExtractAudio(ctx context.Context, outputPath string) error {
	return f.acquire().ExtractAudio(ctx, f.desc, outputPath, f.runOpts()...)
}

// AddAudio muxes audioPath onto this file's video stream and returns a
// freshly probed handle for the output.
func (f *File) AddAudio(ctx context.Context, audioPath, outputPath string) (*File, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("%w: %s", media.ErrNotFound, audioPath)
	}

	if err := f.acquire().AddAudio(ctx, f.desc, audioPath, outputPath, f.runOpts()...); err != nil {
		return nil, err
	}

	return f.reopen(ctx, outputPath)
}

// Snapshot captures a single frame at the given instant into an image file.
// The zero instant captures the start of the stream.
func (f *File) Snapshot(ctx context.Context, outputPath string, size media.SizePreset, at time.Duration) error {
	return f.acquire().Snapshot(ctx, f.desc, outputPath, size, at, f.runOpts()...)
}

// JoinWith concatenates this file followed by others, in the given order,
// into outputPath. This handle is always the first input.
func (f *File) JoinWith(ctx context.Context, outputPath string, others ...*File) error {
	descs := make([]*media.Descriptor, 0, len(others)+1)
	descs = append(descs, f.desc)
	for _, other := range others {
		descs = append(descs, other.desc)
	}

	return f.acquire().Join(ctx, outputPath, descs, f.runOpts()...)
}

// Stop terminates any in-flight operation and blocks until the engine has
// reached a terminal state. A no-op when idle.
func (f *File) Stop() error {
	f.mu.Lock()
	eng := f.eng
	f.mu.Unlock()

	if eng == nil {
		return nil
	}
	return eng.Stop()
}

// Close releases the handle, stopping any running operation so no external
// process outlives it.
func (f *File) Close() error {
	return f.Stop()
}

// reopen probes an operation output and wraps it in a new handle carrying
// the same configuration as the parent.
func (f *File) reopen(ctx context.Context, path string) (*File, error) {
	opts := []Option{WithProber(f.prober)}
	if f.ffmpegPath != "" {
		opts = append(opts, WithFFmpegPath(f.ffmpegPath))
	}
	if f.onProgress != nil {
		opts = append(opts, WithProgress(f.onProgress))
	}
	return Open(ctx, path, opts...)
}

// forceExtension swaps the extension of path for ext (which includes the dot).
func forceExtension(path, ext string) string {
	current := filepath.Ext(path)
	if strings.EqualFold(current, ext) {
		return path
	}
	return strings.TrimSuffix(path, current) + ext
}
