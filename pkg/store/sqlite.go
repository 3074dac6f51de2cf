package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fmpfmp/mediaforge/pkg/media"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists jobs in a SQLite database so records survive server
// restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the job database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// Pragmas must ride the DSN: modernc.org/sqlite applies Exec'd pragmas
	// only to the single pooled connection that ran them, so every other
	// connection would open without busy_timeout and fail with SQLITE_BUSY.
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateJob creates a new job record
func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return ErrInvalidJobID
	}

	spec, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, spec, status, error, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, string(spec), string(job.Status), job.Error,
		job.CreatedAt.Format(time.RFC3339Nano), job.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrJobExists
		}
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, ErrInvalidJobID
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, spec, status, progress, error, result,
                created_at, updated_at, started_at, completed_at
         FROM jobs WHERE id = ?`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// UpdateJob replaces an existing job record
func (s *SQLiteStore) UpdateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return ErrInvalidJobID
	}

	spec, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}

	job.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET spec = ?, status = ?, progress = ?, error = ?, result = ?,
                updated_at = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		string(spec), string(job.Status), encodeJSON(job.Progress), job.Error,
		encodeJSON(job.Result), job.UpdatedAt.Format(time.RFC3339Nano),
		encodeTime(job.StartedAt), encodeTime(job.CompletedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	return requireRow(res)
}

// DeleteJob deletes a job by ID
func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrInvalidJobID
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return requireRow(res)
}

// ListJobs lists jobs, newest first
func (s *SQLiteStore) ListJobs(ctx context.Context, filter *ListFilter) ([]*Job, error) {
	query := `SELECT id, spec, status, progress, error, result,
                     created_at, updated_at, started_at, completed_at
              FROM jobs`
	var args []any

	if filter != nil && len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query += " ORDER BY created_at DESC"
	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// UpdateStatus updates job state and progress. The terminal-state guard is
// part of the UPDATE itself, so two racing transitions cannot both pass it.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, jobID string, status State, progress *Progress) error {
	if jobID == "" {
		return ErrInvalidJobID
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?,
	            progress = COALESCE(?, progress),
	            updated_at = ?,
	            started_at = CASE WHEN ? AND started_at IS NULL THEN ? ELSE started_at END,
	            completed_at = CASE WHEN ? AND completed_at IS NULL THEN ? ELSE completed_at END
	     WHERE id = ? AND status NOT IN (?, ?, ?)`,
		string(status), encodeJSON(progress), now,
		status == StateRunning, now,
		status.Terminal(), now,
		jobID, string(StateCompleted), string(StateFailed), string(StateCancelled))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the job does not exist or it has already reached a
		// terminal state.
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, jobID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("check job: %w", err)
		}
		return ErrJobTerminal
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                    Job
		spec                   string
		status                 string
		progress, result       sql.NullString
		createdAt, updatedAt   string
		startedAt, completedAt sql.NullString
	)

	err := row.Scan(&job.ID, &spec, &status, &progress, &job.Error, &result,
		&createdAt, &updatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.Status = State(status)

	if err := json.Unmarshal([]byte(spec), &job.Spec); err != nil {
		return nil, fmt.Errorf("decode spec for job %s: %w", job.ID, err)
	}
	if progress.Valid && progress.String != "" {
		var p Progress
		if err := json.Unmarshal([]byte(progress.String), &p); err != nil {
			return nil, fmt.Errorf("decode progress for job %s: %w", job.ID, err)
		}
		job.Progress = &p
	}
	if result.Valid && result.String != "" {
		var desc media.Descriptor
		if err := json.Unmarshal([]byte(result.String), &desc); err != nil {
			return nil, fmt.Errorf("decode result for job %s: %w", job.ID, err)
		}
		job.Result = &desc
	}

	job.CreatedAt = decodeTime(createdAt)
	job.UpdatedAt = decodeTime(updatedAt)
	if startedAt.Valid && startedAt.String != "" {
		t := decodeTime(startedAt.String)
		job.StartedAt = &t
	}
	if completedAt.Valid && completedAt.String != "" {
		t := decodeTime(completedAt.String)
		job.CompletedAt = &t
	}

	return &job, nil
}

func encodeJSON(v any) sql.NullString {
	switch v := v.(type) {
	case *Progress:
		if v == nil {
			return sql.NullString{}
		}
	case *media.Descriptor:
		if v == nil {
			return sql.NullString{}
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func encodeTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}
