// Package store persists conversion job records for the HTTP API.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/media"
)

var (
	// ErrJobNotFound is returned when a job does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when attempting to create a job that already exists
	ErrJobExists = errors.New("job already exists")

	// ErrInvalidJobID is returned for invalid job IDs
	ErrInvalidJobID = errors.New("invalid job ID")

	// ErrJobTerminal is returned by UpdateStatus when the job has already
	// reached a terminal state. Terminal states are sticky.
	ErrJobTerminal = errors.New("job is in a terminal state")
)

// State is a job's position in its lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateStaging   State = "staging"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Operation names one of the conversion operations a job can request.
type Operation string

const (
	OpConvert      Operation = "convert"
	OpExtractVideo Operation = "extract_video"
	OpExtractAudio Operation = "extract_audio"
	OpAddAudio     Operation = "add_audio"
	OpSnapshot     Operation = "snapshot"
	OpJoin         Operation = "join"
)

// Spec is the user-submitted description of one conversion job. Input and
// output fields accept plain paths, file://, http(s):// and s3:// URIs.
type Spec struct {
	Op     Operation `json:"op"`
	Input  string    `json:"input,omitempty"`
	Inputs []string  `json:"inputs,omitempty"` // join only; order is preserved exactly
	Audio  string    `json:"audio,omitempty"`  // add_audio only
	Output string    `json:"output"`

	Convert      *media.ConvertOptions `json:"convert,omitempty"`
	SnapshotSize media.SizePreset      `json:"snapshot_size,omitempty"`
	CaptureTime  *media.Duration       `json:"capture_time,omitempty"`
}

// Progress is the persisted snapshot of an in-flight job's progress.
type Progress struct {
	Percent  float64        `json:"percent"`
	Position media.Duration `json:"position"`
	Speed    float64        `json:"speed,omitempty"`
	FPS      float64        `json:"fps,omitempty"`
}

// Job is one conversion job record.
type Job struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Spec *Spec `json:"spec"`

	Status   State     `json:"status"`
	Progress *Progress `json:"progress,omitempty"`
	Error    string    `json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is the freshly probed descriptor of the output, set on success
	// for operations that produce a media file.
	Result *media.Descriptor `json:"result,omitempty"`
}

// Terminal reports whether the state is one a job cannot leave.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsTerminal reports whether the job can no longer change state.
func (j *Job) IsTerminal() bool {
	return j.Status.Terminal()
}

// ListFilter narrows and pages ListJobs results.
type ListFilter struct {
	Status []State `json:"status,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}

// Store is the interface for job persistence.
type Store interface {
	// CreateJob creates a new job record
	CreateJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// UpdateJob replaces an existing job record
	UpdateJob(ctx context.Context, job *Job) error

	// DeleteJob deletes a job by ID
	DeleteJob(ctx context.Context, jobID string) error

	// ListJobs lists jobs, newest first
	ListJobs(ctx context.Context, filter *ListFilter) ([]*Job, error)

	// UpdateStatus updates job state and progress
	UpdateStatus(ctx context.Context, jobID string, status State, progress *Progress) error

	// Close releases store resources
	Close() error
}

func matchesFilter(job *Job, filter *ListFilter) bool {
	if filter == nil || len(filter.Status) == 0 {
		return true
	}
	for _, status := range filter.Status {
		if job.Status == status {
			return true
		}
	}
	return false
}
