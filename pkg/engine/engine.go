// Package engine orchestrates a single external ffmpeg process per
// operation: it builds the argument set for each operation variant, spawns
// and supervises the process, streams parsed progress events to the caller,
// and maps the process outcome onto a small state machine.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/media"
)

// ErrStopped is returned from a running operation that was terminated by Stop.
var ErrStopped = errors.New("conversion stopped")

// State is the engine's position in its operation lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// stderrTailLines is how many non-progress stderr lines are kept for
// failure diagnostics.
const stderrTailLines = 5

// progressBuffer bounds the in-flight progress events; a slow observer
// drops events instead of stalling the process monitor.
const progressBuffer = 64

// Engine runs at most one ffmpeg process at a time. The Idle→Running
// transition is guarded so concurrent callers cannot both start a process;
// the loser fails with media.ErrBusy.
type Engine struct {
	ffmpegPath string

	mu            sync.Mutex
	state         State
	proc          *exec.Cmd
	done          chan struct{}
	stopRequested bool
}

// Option is a functional option for Engine
type Option func(*Engine)

// WithFFmpegPath sets a custom ffmpeg binary path
func WithFFmpegPath(path string) Option {
	return func(e *Engine) {
		e.ffmpegPath = path
	}
}

// New creates an idle engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		ffmpegPath: findFFmpeg(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// findFFmpeg locates ffmpeg in PATH or the usual install locations.
func findFFmpeg() string {
	candidates := []string{
		"ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/opt/homebrew/bin/ffmpeg",
		"/usr/bin/ffmpeg",
	}

	for _, path := range candidates {
		if _, err := exec.LookPath(path); err == nil {
			return path
		}
	}

	return ""
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsRunning reports whether an operation is in flight.
func (e *Engine) IsRunning() bool {
	return e.State() == StateRunning
}

// runOptions collects per-operation monitoring settings.
type runOptions struct {
	onProgress    ProgressFunc
	totalDuration time.Duration
}

// RunOption configures one operation invocation.
type RunOption func(*runOptions)

// WithProgress registers a progress observer for one operation. The observer
// is invoked on a separate goroutine; a slow or panicking observer cannot
// stall the monitor or crash the engine.
func WithProgress(fn ProgressFunc) RunOption {
	return func(ro *runOptions) {
		ro.onProgress = fn
	}
}

// WithTotalDuration supplies the source duration so progress events carry a
// completion percentage.
func WithTotalDuration(d time.Duration) RunOption {
	return func(ro *runOptions) {
		ro.totalDuration = d
	}
}

// Convert transcodes desc into the container and codecs selected by opts.
// Unsupported option values fail with media.ErrUnsupported before any
// process is spawned.
func (e *Engine) Convert(ctx context.Context, desc *media.Descriptor, outputPath string, opts media.ConvertOptions, runOpts ...RunOption) error {
	args, err := convertArgs(desc.Path, outputPath, opts)
	if err != nil {
		return err
	}
	return e.run(ctx, args, runOpts...)
}

// ExtractVideo copies the video stream of desc into outputPath.
func (e *Engine) ExtractVideo(ctx context.Context, desc *media.Descriptor, outputPath string, runOpts ...RunOption) error {
	return e.run(ctx, extractVideoArgs(desc.Path, outputPath), runOpts...)
}

// ExtractAudio writes the audio stream of desc into outputPath.
func (e *Engine) ExtractAudio(ctx context.Context, desc *media.Descriptor, outputPath string, runOpts ...RunOption) error {
	return e.run(ctx, extractAudioArgs(desc.Path, outputPath), runOpts...)
}

// AddAudio muxes audioPath onto the video stream of desc.
func (e *Engine) AddAudio(ctx context.Context, desc *media.Descriptor, audioPath, outputPath string, runOpts ...RunOption) error {
	return e.run(ctx, addAudioArgs(desc.Path, audioPath, outputPath), runOpts...)
}

// Snapshot captures a single frame of desc at the given instant. The zero
// instant captures the start of the stream.
func (e *Engine) Snapshot(ctx context.Context, desc *media.Descriptor, outputPath string, size media.SizePreset, at time.Duration, runOpts ...RunOption) error {
	args, err := snapshotArgs(desc.Path, outputPath, size, at)
	if err != nil {
		return err
	}
	return e.run(ctx, args, runOpts...)
}

// Join concatenates the descriptors, in the given order, into one continuous
// file at outputPath.
func (e *Engine) Join(ctx context.Context, outputPath string, descs []*media.Descriptor, runOpts ...RunOption) error {
	inputs := make([]string, len(descs))
	for i, desc := range descs {
		inputs[i] = desc.Path
	}

	args, err := joinArgs(outputPath, inputs)
	if err != nil {
		return err
	}
	return e.run(ctx, args, runOpts...)
}

// Stop terminates the in-flight process if one is running and blocks until
// it has reached a terminal state, so resource release is deterministic.
// Calling Stop on an idle or terminal engine is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning || e.proc == nil {
		e.mu.Unlock()
		return nil
	}
	e.stopRequested = true
	proc := e.proc.Process
	done := e.done
	e.mu.Unlock()

	if proc != nil {
		// The process may have exited on its own already.
		_ = proc.Kill()
	}

	<-done
	return nil
}

// run is the shared execute-and-monitor routine: it spawns ffmpeg with the
// given arguments, drains its stderr for progress events, waits for exit and
// records the terminal state.
func (e *Engine) run(ctx context.Context, args []string, opts ...RunOption) error {
	ro := runOptions{}
	for _, opt := range opts {
		opt(&ro)
	}

	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return media.ErrBusy
	}

	if e.ffmpegPath == "" {
		e.mu.Unlock()
		return fmt.Errorf("%w: ffmpeg not found in PATH", media.ErrProcessSpawn)
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", media.ErrProcessSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", media.ErrProcessSpawn, err)
	}

	done := make(chan struct{})
	e.state = StateRunning
	e.proc = cmd
	e.done = done
	e.stopRequested = false
	e.mu.Unlock()

	// Forward progress events on their own goroutine so the stderr drain
	// never blocks on the observer. Order is preserved; a full buffer drops
	// events rather than stalling the monitor.
	events := make(chan Progress, progressBuffer)
	forwarded := make(chan struct{})
	if ro.onProgress != nil {
		go func() {
			defer close(forwarded)
			for p := range events {
				deliver(ro.onProgress, p)
			}
		}()
	} else {
		close(forwarded)
	}

	parser := newProgressParser(ro.totalDuration)
	tail := make([]string, 0, stderrTailLines)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		if progress := parser.parseLine(line); progress != nil {
			if ro.onProgress != nil {
				select {
				case events <- *progress:
				default:
				}
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		tail = appendTail(tail, line)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		// A mid-run read failure truncates the drain; keep it visible in
		// the failure diagnostics instead of passing for a clean EOF.
		tail = appendTail(tail, fmt.Sprintf("stderr read aborted: %v", scanErr))
	}

	waitErr := cmd.Wait()

	e.mu.Lock()
	stopped := e.stopRequested
	switch {
	case stopped:
		e.state = StateCancelled
	case waitErr != nil:
		e.state = StateFailed
	default:
		e.state = StateCompleted
	}
	e.proc = nil
	e.stopRequested = false
	e.mu.Unlock()
	close(done)

	close(events)
	<-forwarded

	if stopped {
		return ErrStopped
	}
	if waitErr != nil {
		return fmt.Errorf("%w: %v (stderr: %s)", media.ErrConversionFailed, waitErr, strings.Join(tail, " | "))
	}
	return nil
}

// appendTail appends line to the stderr tail, sliding out the oldest entry
// once the tail is full.
func appendTail(tail []string, line string) []string {
	if len(tail) == stderrTailLines {
		copy(tail, tail[1:])
		tail = tail[:stderrTailLines-1]
	}
	return append(tail, line)
}

// deliver invokes the progress observer, trapping panics so a broken
// observer does not take the engine down.
func deliver(fn ProgressFunc, p Progress) {
	defer func() {
		_ = recover()
	}()
	fn(p)
}
