package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/media"
	"github.com/fmpfmp/mediaforge/pkg/store"
)

// fakeProber returns a canned descriptor so server tests run without ffprobe.
type fakeProber struct {
	desc media.Descriptor
}

func (p *fakeProber) Probe(_ context.Context, path string) (*media.Descriptor, error) {
	d := p.desc
	d.Path = path
	return &d, nil
}

func testProber() *fakeProber {
	return &fakeProber{desc: media.Descriptor{
		Duration:    10 * time.Second,
		VideoFormat: "h264",
		AudioFormat: "aac",
		Width:       1280,
		Height:      720,
	}}
}

// writeStub writes a shell script standing in for ffmpeg. It touches its
// final argument, which is always the output path.
func writeStub(t *testing.T, extra string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ffmpeg-stub")
	script := `#!/bin/sh
` + extra + `
out=""
for a in "$@"; do out="$a"; done
: > "$out"
exit 0
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really media"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func newTestServer(t *testing.T, stubExtra string) (*Server, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	server := NewServer(s, WithProber(testProber()), WithFFmpegPath(writeStub(t, stubExtra)))
	t.Cleanup(func() { server.Close() })
	return server, s
}

func postJob(t *testing.T, handler http.Handler, spec *store.Spec) CreateJobResponse {
	t.Helper()

	body, err := json.Marshal(CreateJobRequest{Spec: spec})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp CreateJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	return resp
}

func waitForState(t *testing.T, s store.Store, jobID string, want store.State) *store.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	var last *store.Job
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		last = job
		if job.Status == want {
			return job
		}
		if job.IsTerminal() {
			t.Fatalf("job reached %s (error: %q) while waiting for %s", job.Status, job.Error, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached %s, last status %s", want, last.Status)
	return nil
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", resp["status"])
	}
}

func TestHandleCreateJob_Validation(t *testing.T) {
	server, _ := newTestServer(t, "")
	handler := server.Routes()

	tests := []struct {
		name string
		spec *store.Spec
	}{
		{"missing spec", nil},
		{"unknown op", &store.Spec{Op: "transmogrify", Input: "a.mp4", Output: "b.mp4"}},
		{"convert without options", &store.Spec{Op: store.OpConvert, Input: "a.avi", Output: "b.mp4"}},
		{"convert bad target", &store.Spec{Op: store.OpConvert, Input: "a.avi", Output: "b.wmv", Convert: &media.ConvertOptions{Type: "wmv"}}},
		{"join single input", &store.Spec{Op: store.OpJoin, Inputs: []string{"a.mp4"}, Output: "b.mp4"}},
		{"missing output", &store.Spec{Op: store.OpExtractAudio, Input: "a.mp4"}},
		{"add_audio missing audio", &store.Spec{Op: store.OpAddAudio, Input: "a.mp4", Output: "b.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(CreateJobRequest{Spec: tt.spec})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestJobRunsToCompletion(t *testing.T) {
	server, s := newTestServer(t, "")
	handler := server.Routes()

	source := writeSource(t, "in.mp4")
	output := filepath.Join(t.TempDir(), "out.mp4")

	resp := postJob(t, handler, &store.Spec{
		Op:     store.OpExtractVideo,
		Input:  source,
		Output: output,
	})

	job := waitForState(t, s, resp.JobID, store.StateCompleted)

	if _, err := os.Stat(output); err != nil {
		t.Fatalf("output was not produced: %v", err)
	}
	if job.Result == nil || job.Result.VideoFormat != "h264" {
		t.Fatalf("result descriptor missing or wrong: %+v", job.Result)
	}
	if job.Progress == nil || job.Progress.Percent != 100 {
		t.Fatalf("final progress not recorded: %+v", job.Progress)
	}
	if job.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
}

func TestJobRecordsFailure(t *testing.T) {
	s := store.NewMemoryStore()
	failing := filepath.Join(t.TempDir(), "ffmpeg-stub")
	script := "#!/bin/sh\necho \"conversion error\" >&2\nexit 1\n"
	if err := os.WriteFile(failing, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	server := NewServer(s, WithProber(testProber()), WithFFmpegPath(failing))
	t.Cleanup(func() { server.Close() })
	handler := server.Routes()

	resp := postJob(t, handler, &store.Spec{
		Op:     store.OpExtractAudio,
		Input:  writeSource(t, "in.mp4"),
		Output: filepath.Join(t.TempDir(), "out.mp3"),
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), resp.JobID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == store.StateFailed {
			if job.Error == "" {
				t.Fatal("failed job carries no error message")
			}
			return
		}
		if job.IsTerminal() {
			t.Fatalf("unexpected terminal state %s", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never failed")
}

func TestDeleteCancelsRunningJob(t *testing.T) {
	server, s := newTestServer(t, "sleep 5")
	handler := server.Routes()

	resp := postJob(t, handler, &store.Spec{
		Op:     store.OpExtractVideo,
		Input:  writeSource(t, "in.mp4"),
		Output: filepath.Join(t.TempDir(), "out.mp4"),
	})

	waitForState(t, s, resp.JobID, store.StateRunning)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+resp.JobID, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), resp.JobID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == store.StateCancelled {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached cancelled state")
}

// gatedProber blocks the first probe until released, holding a job in the
// window after staging but before any process has started.
type gatedProber struct {
	fakeProber
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *gatedProber) Probe(ctx context.Context, path string) (*media.Descriptor, error) {
	p.once.Do(func() { close(p.started) })
	<-p.release
	return p.fakeProber.Probe(ctx, path)
}

func TestDeleteCancelsJobBeforeProcessStart(t *testing.T) {
	gp := &gatedProber{
		fakeProber: *testProber(),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}

	s := store.NewMemoryStore()
	marker := filepath.Join(t.TempDir(), "spawned")
	server := NewServer(s, WithProber(gp), WithFFmpegPath(writeStub(t, "touch "+marker)))
	t.Cleanup(func() { server.Close() })
	handler := server.Routes()

	resp := postJob(t, handler, &store.Spec{
		Op:     store.OpExtractVideo,
		Input:  writeSource(t, "in.mp4"),
		Output: filepath.Join(t.TempDir(), "out.mp4"),
	})

	// The runner is inside the input probe; no process exists yet.
	<-gp.started

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+resp.JobID, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	close(gp.release)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), resp.JobID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == store.StateCancelled {
			if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
				t.Fatal("process was spawned for a cancelled job")
			}
			return
		}
		if job.IsTerminal() {
			t.Fatalf("unexpected terminal state %s", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached cancelled state")
}

func TestDeleteRemovesTerminalJob(t *testing.T) {
	server, s := newTestServer(t, "")
	handler := server.Routes()

	resp := postJob(t, handler, &store.Spec{
		Op:     store.OpExtractVideo,
		Input:  writeSource(t, "in.mp4"),
		Output: filepath.Join(t.TempDir(), "out.mp4"),
	})
	waitForState(t, s, resp.JobID, store.StateCompleted)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+resp.JobID, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	if _, err := s.GetJob(context.Background(), resp.JobID); err != store.ErrJobNotFound {
		t.Fatalf("expected record removed, got %v", err)
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	server, _ := newTestServer(t, "")
	handler := server.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleListJobs_FilterAndPaging(t *testing.T) {
	server, s := newTestServer(t, "")
	handler := server.Routes()

	for i := 0; i < 3; i++ {
		job := &store.Job{
			ID:     fmt.Sprintf("job-%d", i),
			Status: store.StatePending,
			Spec:   &store.Spec{Op: store.OpSnapshot, Input: "in.mp4", Output: "frame.png"},
		}
		if err := s.CreateJob(context.Background(), job); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=pending&limit=2", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var jobs []*store.Job
	if err := json.Unmarshal(w.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
}

func TestHandleProbe(t *testing.T) {
	server, _ := newTestServer(t, "")
	handler := server.Routes()

	source := writeSource(t, "clip.mp4")
	body, _ := json.Marshal(ProbeRequest{Path: source})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/probe", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var desc media.Descriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if desc.Width != 1280 || desc.VideoFormat != "h264" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
}
