package scheduler

import (
	"context"
	"testing"

	"github.com/mcclellann/fieldloan/internal/config"
	"github.com/mcclellann/fieldloan/internal/jobs"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersConfiguredJobs(t *testing.T) {
	runner := jobs.NewRunner(store.NewMemoryStore(), nil)
	s, err := New(runner, config.ScheduleConfig{
		Timezone: "UTC",
		Tasks:    "0 6 * * 1-6",
		Arrears:  "30 23 * * *",
		Snapshot: "59 23 * * *",
	}, nil)
	require.NoError(t, err)

	assert.True(t, s.Scheduled(jobs.JobTasks))
	assert.True(t, s.Scheduled(jobs.JobArrears))
	assert.True(t, s.Scheduled(jobs.JobSnapshot))
	assert.False(t, s.Scheduled(jobs.JobHealth), "empty spec disables the job")

	s.Start()
	s.Stop()
}

func TestNew_InvalidSpec(t *testing.T) {
	runner := jobs.NewRunner(store.NewMemoryStore(), nil)
	_, err := New(runner, config.ScheduleConfig{Timezone: "UTC", Tasks: "at dawn"}, nil)
	assert.Error(t, err)
}

func TestTrigger_RunsJob(t *testing.T) {
	s := store.NewMemoryStore()
	sched, err := New(jobs.NewRunner(s, nil), config.ScheduleConfig{Timezone: "UTC"}, nil)
	require.NoError(t, err)

	sched.trigger(jobs.JobSnapshot)()

	runner := jobs.NewRunner(s, nil)
	snap, err := s.GetSnapshot(context.Background(), runner.Today())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.ActiveLoans)
}
