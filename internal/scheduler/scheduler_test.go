package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs int64
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt64(&j.runs, 1)
	return j.err
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
}

func TestAddJob_ValidSchedules(t *testing.T) {
	s := New(zerolog.Nop())

	for _, schedule := range []string{"*/5 * * * *", "@hourly", "30 17 * * MON-FRI", "@every 30s"} {
		assert.NoError(t, s.AddJob(schedule, &countingJob{}), schedule)
	}
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.RunNow(context.Background(), job))
	assert.Equal(t, int64(1), atomic.LoadInt64(&job.runs))
}

func TestRunNow_PropagatesError(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	assert.Error(t, s.RunNow(context.Background(), job))
}
