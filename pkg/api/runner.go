package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/engine"
	"github.com/fmpfmp/mediaforge/pkg/media"
	"github.com/fmpfmp/mediaforge/pkg/mediafile"
	"github.com/fmpfmp/mediaforge/pkg/store"
)

// run is one in-flight job execution. Cancelling it aborts the run context,
// which kills a process that has not started yet, and stops the file handle,
// which reaps one that has.
type run struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	handle    *mediafile.File
	cancelled bool
}

func (rn *run) attach(f *mediafile.File) {
	rn.mu.Lock()
	rn.handle = f
	cancelled := rn.cancelled
	rn.mu.Unlock()
	if cancelled {
		_ = f.Stop()
	}
}

// runSet tracks every in-flight job so cancellation can reach it without
// polling.
type runSet struct {
	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

func newRunSet() *runSet {
	return &runSet{runs: make(map[string]*run)}
}

func (r *runSet) begin(jobID string, cancel context.CancelFunc) *run {
	rn := &run{cancel: cancel}
	r.mu.Lock()
	r.runs[jobID] = rn
	r.mu.Unlock()
	return rn
}

func (r *runSet) remove(jobID string) {
	r.mu.Lock()
	delete(r.runs, jobID)
	r.mu.Unlock()
}

// cancel aborts the job's run if one is in flight. It reports whether a run
// was found; the runner itself persists the cancelled state.
func (r *runSet) cancel(jobID string) bool {
	r.mu.Lock()
	rn, ok := r.runs[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	rn.mu.Lock()
	rn.cancelled = true
	f := rn.handle
	rn.mu.Unlock()

	rn.cancel()
	if f != nil {
		_ = f.Stop()
	}
	return true
}

// stopAll cancels every in-flight job and waits for the runners to finish.
func (r *runSet) stopAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.cancel(id)
	}
	r.wg.Wait()
}

// runJob drives one job from staging through completion. It owns the job's
// status transitions from the moment it starts.
func (s *Server) runJob(jobID string) {
	s.runs.wg.Add(1)
	defer s.runs.wg.Done()

	ctx := context.Background()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rn := s.runs.begin(jobID, cancel)
	defer s.runs.remove(jobID)

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("job %s: load failed: %v", jobID, err)
		return
	}
	if job.IsTerminal() {
		return
	}
	spec := job.Spec

	if err := s.store.UpdateStatus(ctx, jobID, store.StateStaging, nil); err != nil {
		if !errors.Is(err, store.ErrJobTerminal) {
			log.Printf("job %s: status update failed: %v", jobID, err)
		}
		return
	}

	scratch, err := s.staging.Scratch()
	if err != nil {
		s.failJob(ctx, jobID, err)
		return
	}
	defer func() {
		if err := s.staging.Cleanup(scratch); err != nil {
			log.Printf("job %s: scratch cleanup failed: %v", jobID, err)
		}
	}()

	outputPath := s.staging.OutputPath(spec.Output, scratch)

	result, err := s.executeSpec(runCtx, rn, jobID, spec, scratch, outputPath)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrJobTerminal):
			// Cancelled before the operation started.
		case errors.Is(err, engine.ErrStopped), runCtx.Err() != nil:
			updateErr := s.store.UpdateStatus(ctx, jobID, store.StateCancelled, nil)
			if updateErr != nil && !errors.Is(updateErr, store.ErrJobTerminal) {
				log.Printf("job %s: status update failed: %v", jobID, updateErr)
			}
		default:
			s.failJob(ctx, jobID, err)
		}
		return
	}

	localOutput := outputPath
	if result != nil {
		// ConvertTo may have adjusted the extension.
		localOutput = result.Path
	}

	if err := s.staging.PublishOutput(ctx, localOutput, spec.Output); err != nil {
		s.failJob(ctx, jobID, err)
		return
	}

	job, err = s.store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("job %s: reload failed: %v", jobID, err)
		return
	}
	if job.IsTerminal() {
		return
	}
	job.Status = store.StateCompleted
	job.Result = result
	job.Progress = &store.Progress{Percent: 100}
	now := time.Now().UTC()
	if job.CompletedAt == nil {
		job.CompletedAt = &now
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		log.Printf("job %s: final update failed: %v", jobID, err)
	}
}

// executeSpec stages inputs, runs the requested operation, and returns the
// probed descriptor of the output for operations that produce media.
func (s *Server) executeSpec(ctx context.Context, rn *run, jobID string, spec *store.Spec, scratch, outputPath string) (*media.Descriptor, error) {
	var inputs []string
	if spec.Op == store.OpJoin {
		inputs = spec.Inputs
	} else {
		inputs = []string{spec.Input}
	}

	locals := make([]string, len(inputs))
	for i, uri := range inputs {
		local, err := s.staging.FetchInput(ctx, uri, scratch)
		if err != nil {
			return nil, err
		}
		locals[i] = local
	}

	f, err := s.openFile(ctx, jobID, locals[0])
	if err != nil {
		return nil, err
	}
	rn.attach(f)
	if err := ctx.Err(); err != nil {
		// Cancelled while the input was being staged or probed.
		return nil, err
	}

	if err := s.store.UpdateStatus(ctx, jobID, store.StateRunning, nil); err != nil {
		return nil, err
	}

	switch spec.Op {
	case store.OpConvert:
		out, err := f.ConvertTo(ctx, outputPath, *spec.Convert)
		if err != nil {
			return nil, err
		}
		desc := out.Info()
		return &desc, nil

	case store.OpExtractVideo:
		if err := f.ExtractVideo(ctx, outputPath); err != nil {
			return nil, err
		}
		return s.prober.Probe(ctx, outputPath)

	case store.OpExtractAudio:
		if err := f.ExtractAudio(ctx, outputPath); err != nil {
			return nil, err
		}
		return s.prober.Probe(ctx, outputPath)

	case store.OpAddAudio:
		audioLocal, err := s.staging.FetchInput(ctx, spec.Audio, scratch)
		if err != nil {
			return nil, err
		}
		out, err := f.AddAudio(ctx, audioLocal, outputPath)
		if err != nil {
			return nil, err
		}
		desc := out.Info()
		return &desc, nil

	case store.OpSnapshot:
		var at time.Duration
		if spec.CaptureTime != nil {
			at = spec.CaptureTime.Duration
		}
		// Snapshots produce an image, not media; no result descriptor.
		return nil, f.Snapshot(ctx, outputPath, spec.SnapshotSize, at)

	case store.OpJoin:
		others := make([]*mediafile.File, 0, len(locals)-1)
		for _, local := range locals[1:] {
			other, err := s.openFile(ctx, jobID, local)
			if err != nil {
				return nil, err
			}
			others = append(others, other)
		}
		if err := f.JoinWith(ctx, outputPath, others...); err != nil {
			return nil, err
		}
		return s.prober.Probe(ctx, outputPath)

	default:
		return nil, media.ErrUnsupported
	}
}

// openFile opens a staged input with this server's prober and ffmpeg, wired
// to persist progress for jobID.
func (s *Server) openFile(ctx context.Context, jobID, path string) (*mediafile.File, error) {
	opts := []mediafile.Option{
		mediafile.WithProber(s.prober),
		mediafile.WithProgress(s.progressSink(jobID)),
	}
	if s.ffmpegPath != "" {
		opts = append(opts, mediafile.WithFFmpegPath(s.ffmpegPath))
	}
	return mediafile.Open(ctx, path, opts...)
}

// progressSink persists progress events for a job. Store errors are logged
// and dropped so a store hiccup cannot abort a healthy conversion.
func (s *Server) progressSink(jobID string) engine.ProgressFunc {
	return func(p engine.Progress) {
		progress := &store.Progress{
			Percent:  p.Percent,
			Position: media.Duration{Duration: p.Time},
			Speed:    p.Speed,
			FPS:      p.FPS,
		}
		err := s.store.UpdateStatus(context.Background(), jobID, store.StateRunning, progress)
		if err != nil && !errors.Is(err, store.ErrJobTerminal) {
			log.Printf("job %s: progress update failed: %v", jobID, err)
		}
	}
}

func (s *Server) failJob(ctx context.Context, jobID string, cause error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("job %s: load failed: %v", jobID, err)
		return
	}
	if job.IsTerminal() {
		return
	}
	job.Status = store.StateFailed
	job.Error = cause.Error()
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		log.Printf("job %s: failure update failed: %v", jobID, err)
	}
}
