package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmpfmp/mediaforge/pkg/media"
)

func testJob(id string) *Job {
	return &Job{
		ID:     id,
		Status: StatePending,
		Spec: &Spec{
			Op:     OpConvert,
			Input:  "/data/in.avi",
			Output: "/data/out.mp4",
			Convert: &media.ConvertOptions{
				Type:  media.TypeMP4,
				Speed: media.SpeedFast,
			},
		},
	}
}

// runStoreTests exercises the Store contract against any implementation.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		job := testJob("job-1")
		require.NoError(t, s.CreateJob(ctx, job))
		assert.False(t, job.CreatedAt.IsZero())

		got, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, StatePending, got.Status)
		assert.Equal(t, OpConvert, got.Spec.Op)
		require.NotNil(t, got.Spec.Convert)
		assert.Equal(t, media.TypeMP4, got.Spec.Convert.Type)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.CreateJob(ctx, testJob("job-1")))
		err := s.CreateJob(ctx, testJob("job-1"))
		assert.ErrorIs(t, err, ErrJobExists)
	})

	t.Run("CreateEmptyID", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		err := s.CreateJob(ctx, testJob(""))
		assert.ErrorIs(t, err, ErrInvalidJobID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		_, err := s.GetJob(ctx, "nope")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("UpdateJob", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		job := testJob("job-1")
		require.NoError(t, s.CreateJob(ctx, job))

		job.Status = StateCompleted
		job.Result = &media.Descriptor{
			Path:     "/data/out.mp4",
			Duration: 10 * time.Second,
			Width:    1280,
			Height:   720,
		}
		require.NoError(t, s.UpdateJob(ctx, job))

		got, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, 1280, got.Result.Width)
		assert.Equal(t, 10*time.Second, got.Result.Duration)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		err := s.UpdateJob(ctx, testJob("nope"))
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.CreateJob(ctx, testJob("job-1")))
		require.NoError(t, s.DeleteJob(ctx, "job-1"))

		_, err := s.GetJob(ctx, "job-1")
		assert.ErrorIs(t, err, ErrJobNotFound)

		assert.ErrorIs(t, s.DeleteJob(ctx, "job-1"), ErrJobNotFound)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		for _, id := range []string{"job-a", "job-b", "job-c"} {
			job := testJob(id)
			require.NoError(t, s.CreateJob(ctx, job))
			// Distinct timestamps so ordering is deterministic.
			time.Sleep(2 * time.Millisecond)
		}

		jobs, err := s.ListJobs(ctx, nil)
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, "job-c", jobs[0].ID)
		assert.Equal(t, "job-a", jobs[2].ID)
	})

	t.Run("ListFiltered", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.CreateJob(ctx, testJob("job-1")))
		require.NoError(t, s.CreateJob(ctx, testJob("job-2")))
		require.NoError(t, s.UpdateStatus(ctx, "job-2", StateRunning, nil))

		jobs, err := s.ListJobs(ctx, &ListFilter{Status: []State{StateRunning}})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-2", jobs[0].ID)
	})

	t.Run("ListLimitOffset", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		for _, id := range []string{"job-a", "job-b", "job-c"} {
			require.NoError(t, s.CreateJob(ctx, testJob(id)))
			time.Sleep(2 * time.Millisecond)
		}

		jobs, err := s.ListJobs(ctx, &ListFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-b", jobs[0].ID)
	})

	t.Run("UpdateStatusLifecycle", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.CreateJob(ctx, testJob("job-1")))

		require.NoError(t, s.UpdateStatus(ctx, "job-1", StateRunning, &Progress{Percent: 25}))
		got, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StateRunning, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.Nil(t, got.CompletedAt)
		require.NotNil(t, got.Progress)
		assert.Equal(t, float64(25), got.Progress.Percent)

		started := *got.StartedAt

		require.NoError(t, s.UpdateStatus(ctx, "job-1", StateCompleted, &Progress{Percent: 100}))
		got, err = s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.True(t, got.StartedAt.Equal(started), "StartedAt must not change on later updates")
		require.NotNil(t, got.CompletedAt)
		assert.True(t, got.IsTerminal())
	})

	t.Run("TerminalStateIsSticky", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.CreateJob(ctx, testJob("job-1")))
		require.NoError(t, s.UpdateStatus(ctx, "job-1", StateCancelled, nil))

		err := s.UpdateStatus(ctx, "job-1", StateRunning, nil)
		assert.ErrorIs(t, err, ErrJobTerminal)

		got, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, got.Status)
	})

	t.Run("UpdateStatusMissing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		err := s.UpdateStatus(ctx, "nope", StateRunning, nil)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("ConcurrentCancelIsNotOverwritten", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.CreateJob(ctx, testJob("job-1")))

		// A cancel racing against lifecycle transitions: once the cancel
		// write lands, no later write may move the job out of cancelled.
		start := make(chan struct{})
		var wg sync.WaitGroup
		var cancelErr, stagingErr error

		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			cancelErr = s.UpdateStatus(ctx, "job-1", StateCancelled, nil)
		}()
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 100; i++ {
				err := s.UpdateStatus(ctx, "job-1", StateStaging, nil)
				if errors.Is(err, ErrJobTerminal) {
					return
				}
				if err != nil {
					stagingErr = err
					return
				}
			}
		}()

		close(start)
		wg.Wait()

		require.NoError(t, cancelErr)
		require.NoError(t, stagingErr)
		got, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, got.Status)
	})

	t.Run("JoinSpecRoundTrip", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		job := &Job{
			ID:     "join-1",
			Status: StatePending,
			Spec: &Spec{
				Op:     OpJoin,
				Inputs: []string{"/data/a.mp4", "/data/b.mp4", "/data/c.mp4"},
				Output: "/data/joined.mp4",
			},
		}
		require.NoError(t, s.CreateJob(ctx, job))

		got, err := s.GetJob(ctx, "join-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"/data/a.mp4", "/data/b.mp4", "/data/c.mp4"}, got.Spec.Inputs)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
		require.NoError(t, err)
		return s
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	job := testJob("job-1")
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	got.Status = StateFailed
	got.Spec.Input = "mutated"

	fresh, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, fresh.Status)
	assert.Equal(t, "/data/in.avi", fresh.Spec.Input)
}
