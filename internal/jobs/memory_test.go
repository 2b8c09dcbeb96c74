package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/router-sms-gateway/internal/model"
)

func newJob(id string, at time.Time) model.Job {
	return model.Job{
		ID:          id,
		PhoneNumber: "+15551234567",
		Message:     "hello",
		Status:      model.JobPending,
		SubmittedAt: at,
		UpdatedAt:   at,
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour, 10)

	require.NoError(t, s.Create(ctx, newJob("a", time.Now())))
	require.ErrorIs(t, s.Create(ctx, newJob("a", time.Now())), ErrExists)

	require.NoError(t, s.Transition(ctx, "a", model.JobProcessing, nil))
	res := model.Success()
	require.NoError(t, s.Transition(ctx, "a", model.JobCompleted, &res))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, model.JobCompleted, got.Status)
	require.Equal(t, model.MsgSent, got.Result.Message)

	// status never regresses
	require.ErrorIs(t, s.Transition(ctx, "a", model.JobProcessing, nil), ErrInvalidTransition)
	require.ErrorIs(t, s.Transition(ctx, "a", model.JobFailed, nil), ErrInvalidTransition)

	// callers get copies
	got.Result.Message = "mutated"
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, model.MsgSent, again.Result.Message)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Transition(ctx, "missing", model.JobProcessing, nil), ErrNotFound)
}

func TestMemoryStoreTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore(time.Minute, 10)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Create(ctx, newJob("old", now)))
	now = now.Add(30 * time.Second)
	require.NoError(t, s.Create(ctx, newJob("new", now)))

	now = now.Add(45 * time.Second)
	_, err := s.Get(ctx, "old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "new")
	require.NoError(t, err)

	require.Equal(t, 1, s.Sweep(now.Add(time.Minute)))
	require.Equal(t, 0, s.Len())
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour, 3)
	res := model.Success()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("j%d", i)
		require.NoError(t, s.Create(ctx, newJob(id, time.Now())))
		require.NoError(t, s.Transition(ctx, id, model.JobProcessing, nil))
		require.NoError(t, s.Transition(ctx, id, model.JobCompleted, &res))
	}
	require.Equal(t, 3, s.Len())

	_, err := s.Get(ctx, "j0")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "j1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "j4")
	require.NoError(t, err)
}

func TestMemoryStoreKeepsLiveJobsWhenFull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour, 2)

	require.NoError(t, s.Create(ctx, newJob("running", time.Now())))
	require.NoError(t, s.Transition(ctx, "running", model.JobProcessing, nil))
	require.NoError(t, s.Create(ctx, newJob("done", time.Now())))
	require.NoError(t, s.Transition(ctx, "done", model.JobProcessing, nil))
	res := model.Success()
	require.NoError(t, s.Transition(ctx, "done", model.JobCompleted, &res))

	require.NoError(t, s.Create(ctx, newJob("queued", time.Now())))
	require.Equal(t, 2, s.Len())

	_, err := s.Get(ctx, "done")
	require.ErrorIs(t, err, ErrNotFound)
	got, err := s.Get(ctx, "running")
	require.NoError(t, err)
	require.Equal(t, model.JobProcessing, got.Status)
	require.NoError(t, s.Transition(ctx, "running", model.JobCompleted, &res))
	_, err = s.Get(ctx, "queued")
	require.NoError(t, err)

	require.NoError(t, s.Create(ctx, newJob("next", time.Now())))
	// only unfinished jobs left: refuse rather than drop one
	require.ErrorIs(t, s.Create(ctx, newJob("overflow", time.Now())), ErrFull)
	_, err = s.Get(ctx, "queued")
	require.NoError(t, err)
	_, err = s.Get(ctx, "next")
	require.NoError(t, err)
}
