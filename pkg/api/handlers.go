// Package api exposes the conversion job service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fmpfmp/mediaforge/pkg/media"
	"github.com/fmpfmp/mediaforge/pkg/mediafile"
	"github.com/fmpfmp/mediaforge/pkg/prober"
	"github.com/fmpfmp/mediaforge/pkg/staging"
	"github.com/fmpfmp/mediaforge/pkg/storage"
	"github.com/fmpfmp/mediaforge/pkg/store"
)

// Server holds the API server dependencies
type Server struct {
	store   store.Store
	staging *staging.Manager
	prober  mediafile.Prober

	ffmpegPath string

	runs *runSet
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithFFmpegPath sets the ffmpeg binary used by job engines.
func WithFFmpegPath(path string) ServerOption {
	return func(s *Server) {
		s.ffmpegPath = path
	}
}

// WithFFprobePath sets the ffprobe binary used to probe inputs and results.
func WithFFprobePath(path string) ServerOption {
	return func(s *Server) {
		s.prober = prober.New(prober.WithFFprobePath(path))
	}
}

// WithProber replaces the ffprobe-backed prober, mainly for tests.
func WithProber(p mediafile.Prober) ServerOption {
	return func(s *Server) {
		s.prober = p
	}
}

// WithWorkDir places job scratch directories under dir instead of the system
// temp directory.
func WithWorkDir(dir string) ServerOption {
	return func(s *Server) {
		s.staging = staging.NewManagerIn(dir)
	}
}

// NewServer creates a new API server
func NewServer(s store.Store, opts ...ServerOption) *Server {
	srv := &Server{
		store:   s,
		staging: staging.NewManager(),
		runs:    newRunSet(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.prober == nil {
		srv.prober = prober.New()
	}
	return srv
}

// CreateJobRequest represents the request body for creating a job
type CreateJobRequest struct {
	Spec *store.Spec `json:"spec"`
}

// CreateJobResponse represents the response for creating a job
type CreateJobResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ProbeRequest represents the request body for probing a file
type ProbeRequest struct {
	Path string `json:"path"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Routes registers all handlers on a new mux, wrapped in the standard
// middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs", Chain(s.handleJobs, RecoveryMiddleware, LoggingMiddleware, CORSMiddleware))
	mux.HandleFunc("/api/v1/jobs/", Chain(s.handleJobByID, RecoveryMiddleware, LoggingMiddleware, CORSMiddleware))
	mux.HandleFunc("/api/v1/probe", Chain(s.HandleProbe, RecoveryMiddleware, LoggingMiddleware, CORSMiddleware))
	mux.HandleFunc("/health", Chain(s.HandleHealth, RecoveryMiddleware, LoggingMiddleware))
	return mux
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.HandleCreateJob(w, r)
	case http.MethodGet:
		s.HandleListJobs(w, r)
	default:
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.HandleGetJob(w, r)
	case http.MethodDelete:
		s.HandleDeleteJob(w, r)
	default:
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// HandleCreateJob handles POST /api/v1/jobs
func (s *Server) HandleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if req.Spec == nil {
		s.sendError(w, http.StatusBadRequest, "missing_spec", "Job specification is required")
		return
	}

	if err := validateSpec(req.Spec); err != nil {
		s.sendError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("Invalid job specification: %v", err))
		return
	}

	job := &store.Job{
		ID:     uuid.NewString(),
		Status: store.StatePending,
		Spec:   req.Spec,
	}

	ctx := r.Context()
	if err := s.store.CreateJob(ctx, job); err != nil {
		s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to create job: %v", err))
		return
	}

	// Run the conversion detached from the request lifetime.
	go s.runJob(job.ID)

	resp := CreateJobResponse{
		JobID:     job.ID,
		Status:    string(store.StatePending),
		CreatedAt: job.CreatedAt,
	}

	s.sendJSON(w, http.StatusCreated, resp)
}

// HandleGetJob handles GET /api/v1/jobs/{id}
func (s *Server) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		s.sendError(w, http.StatusBadRequest, "invalid_job_id", "Job ID is required")
		return
	}

	job, err := s.store.GetJob(r.Context(), jobID)
	if errors.Is(err, store.ErrJobNotFound) {
		s.sendError(w, http.StatusNotFound, "job_not_found", fmt.Sprintf("Job %s not found", jobID))
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to get job: %v", err))
		return
	}

	s.sendJSON(w, http.StatusOK, job)
}

// HandleListJobs handles GET /api/v1/jobs
func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := s.parseListFilter(r)

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to list jobs: %v", err))
		return
	}
	if jobs == nil {
		jobs = []*store.Job{}
	}

	s.sendJSON(w, http.StatusOK, jobs)
}

// HandleDeleteJob handles DELETE /api/v1/jobs/{id}. A pending or running
// job is cancelled; the record of a terminal job is removed.
func (s *Server) HandleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		s.sendError(w, http.StatusBadRequest, "invalid_job_id", "Job ID is required")
		return
	}

	ctx := r.Context()
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrJobNotFound) {
		s.sendError(w, http.StatusNotFound, "job_not_found", fmt.Sprintf("Job %s not found", jobID))
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to get job: %v", err))
		return
	}

	if job.IsTerminal() {
		if err := s.store.DeleteJob(ctx, jobID); err != nil {
			s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to delete job: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Abort the runner if one is in flight; it persists the cancelled
	// state itself. With no runner, mark the job cancelled directly.
	// ErrJobTerminal here means the job finished between our read and the
	// write; the 204 stands and the terminal record remains.
	if !s.runs.cancel(jobID) {
		if err := s.store.UpdateStatus(ctx, jobID, store.StateCancelled, nil); err != nil && !errors.Is(err, store.ErrJobTerminal) {
			s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to cancel job: %v", err))
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleProbe handles POST /api/v1/probe
func (s *Server) HandleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Path == "" {
		s.sendError(w, http.StatusBadRequest, "missing_path", "Path is required")
		return
	}

	desc, err := s.prober.Probe(r.Context(), storage.LocalPath(req.Path))
	if errors.Is(err, media.ErrProbe) {
		s.sendError(w, http.StatusUnprocessableEntity, "probe_error", err.Error())
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "probe_error", err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, desc)
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	health := map[string]any{
		"status": "healthy",
		"time":   time.Now(),
	}

	s.sendJSON(w, http.StatusOK, health)
}

// Close stops all in-flight jobs and releases the store.
func (s *Server) Close() error {
	s.runs.stopAll()
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// validateSpec rejects specs that cannot possibly run before a job record
// is created for them.
func validateSpec(spec *store.Spec) error {
	switch spec.Op {
	case store.OpConvert:
		if spec.Convert == nil {
			return errors.New("convert options are required for op convert")
		}
		if _, err := spec.Convert.Type.Extension(); err != nil {
			return err
		}
	case store.OpExtractVideo, store.OpExtractAudio, store.OpSnapshot:
	case store.OpAddAudio:
		if spec.Audio == "" {
			return errors.New("audio input is required for op add_audio")
		}
	case store.OpJoin:
		if len(spec.Inputs) < 2 {
			return errors.New("op join requires at least two inputs")
		}
	default:
		return fmt.Errorf("unknown op %q", spec.Op)
	}

	if spec.Op != store.OpJoin && spec.Input == "" {
		return errors.New("input is required")
	}
	if spec.Output == "" {
		return errors.New("output is required")
	}

	uris := append([]string{}, spec.Inputs...)
	if spec.Input != "" {
		uris = append(uris, spec.Input)
	}
	if spec.Audio != "" {
		uris = append(uris, spec.Audio)
	}
	uris = append(uris, spec.Output)
	for _, uri := range uris {
		if err := validateURI(uri); err != nil {
			return fmt.Errorf("uri %q: %w", uri, err)
		}
	}
	return nil
}

// Helper methods

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	resp := ErrorResponse{
		Error:   code,
		Message: message,
		Code:    status,
	}
	s.sendJSON(w, status, resp)
}

func (s *Server) parseListFilter(r *http.Request) *store.ListFilter {
	q := r.URL.Query()
	filter := &store.ListFilter{}

	if statusStr := q.Get("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Status = append(filter.Status, store.State(part))
			}
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	return filter
}

// extractJobID extracts job ID from URL path like "/api/v1/jobs/{id}"
func extractJobID(path string) string {
	const prefix = "/api/v1/jobs/"
	if len(path) <= len(prefix) {
		return ""
	}
	return path[len(prefix):]
}
