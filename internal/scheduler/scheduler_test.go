package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopTask(_ context.Context) error { return nil }

func TestRegisterTaskValidation(t *testing.T) {
	s, err := New(zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.RegisterTask(TaskConfig{
		ID: "poll", Name: "Poll", Interval: time.Hour, Func: noopTask,
	}))

	err = s.RegisterTask(TaskConfig{ID: "poll", Name: "Poll", Interval: time.Hour, Func: noopTask})
	assert.ErrorContains(t, err, "already registered")

	err = s.RegisterTask(TaskConfig{ID: "empty", Name: "Empty", Func: noopTask})
	assert.ErrorContains(t, err, "neither cron nor interval")
}

func TestRunNow(t *testing.T) {
	s, err := New(zerolog.Nop())
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID: "sweep", Name: "Sweep", Interval: time.Hour,
		Func: func(_ context.Context) error {
			ran <- struct{}{}
			return nil
		},
	}))

	require.NoError(t, s.RunNow("sweep"))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	assert.ErrorContains(t, s.RunNow("missing"), "not found")
}

func TestListTasks(t *testing.T) {
	s, err := New(zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.RegisterTask(TaskConfig{
		ID: "rss", Name: "RSS Sync", Cron: "*/15 * * * *", Func: noopTask,
	}))
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID: "poll", Name: "Poll", Interval: time.Hour, Func: noopTask,
	}))

	tasks := s.ListTasks()
	require.Len(t, tasks, 2)

	byID := make(map[string]TaskInfo, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	assert.Equal(t, "RSS Sync", byID["rss"].Name)
	assert.Equal(t, "*/15 * * * *", byID["rss"].Cron)
	assert.Nil(t, byID["poll"].LastRun, "never executed")
	assert.False(t, byID["poll"].Running)
}
