package notifier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(context.Context) (*RunSummary, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &RunSummary{RunID: "run"}, nil
}

func TestNewScheduler(t *testing.T) {
	s, err := NewScheduler(&countingRunner{}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, s.schedule)

	_, err = NewScheduler(&countingRunner{}, "every morning")
	assert.ErrorContains(t, err, "invalid cron schedule")
}

func TestSchedulerRunOnce(t *testing.T) {
	r := &countingRunner{}
	s, err := NewScheduler(r, DefaultSchedule)
	require.NoError(t, err)

	summary, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run", summary.RunID)
	assert.EqualValues(t, 1, r.calls.Load())

	r.err = errors.New("smtp down")
	_, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "smtp down")
}

func TestSchedulerStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewScheduler(&countingRunner{}, "0 7 * * *")
	require.NoError(t, err)
	assert.Nil(t, s.NextRun())

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(ctx))

	next := s.NextRun()
	require.NotNil(t, next)
	assert.Equal(t, 7, next.Hour())
	assert.Zero(t, next.Minute())

	s.Stop()
	assert.False(t, s.IsRunning())
}
