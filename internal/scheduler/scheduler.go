// Package scheduler runs the daily jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"

	"github.com/mcclellann/fieldloan/internal/config"
	"github.com/mcclellann/fieldloan/internal/jobs"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler owns the cron instance that triggers the runner's jobs.
type Scheduler struct {
	cron   *cron.Cron
	runner *jobs.Runner
	logger *zap.Logger
	jobs   map[string]cron.EntryID
}

// New registers every job with a non-empty spec in conf. Specs are standard
// five-field cron expressions evaluated in conf's time zone.
func New(runner *jobs.Runner, conf config.ScheduleConfig, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(conf.Location())),
		runner: runner,
		logger: logger,
		jobs:   make(map[string]cron.EntryID),
	}
	for job, spec := range map[string]string{
		jobs.JobTasks:    conf.Tasks,
		jobs.JobArrears:  conf.Arrears,
		jobs.JobSnapshot: conf.Snapshot,
		jobs.JobHealth:   conf.Health,
	} {
		if spec == "" {
			continue
		}
		id, err := s.cron.AddFunc(spec, s.trigger(job))
		if err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", job, spec, err)
		}
		s.jobs[job] = id
		logger.Info("job scheduled", zap.String("op", "scheduler.New"), zap.String("job", job), zap.String("spec", spec))
	}
	return s, nil
}

func (s *Scheduler) trigger(job string) func() {
	return func() {
		date := s.runner.Today()
		s.logger.Info("scheduled job starting", zap.String("op", "scheduler.trigger"), zap.String("job", job))
		if err := s.runner.Run(context.Background(), job, date, false, false); err != nil {
			s.logger.Error("scheduled job failed",
				zap.String("op", "scheduler.trigger"),
				zap.String("job", job),
				zap.Error(err))
		}
	}
}

// Scheduled reports whether job has a cron entry.
func (s *Scheduler) Scheduled(job string) bool {
	_, ok := s.jobs[job]
	return ok
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
