package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/go-co-op/gocron"

	"member-activity/internal/config"
)

type CycleRunner interface {
	RunCycle(ctx context.Context, job config.Job) (*CycleResult, error)
}

// ActivityService schedules the configured jobs in UTC. At most one cycle
// runs at a time; a tick that arrives during a cycle is rescheduled.
type ActivityService struct {
	runner    CycleRunner
	jobs      []config.Job
	scheduler *gocron.Scheduler
	logger    *slog.Logger
	ctx       context.Context
}

func NewActivityService(runner CycleRunner, jobs []config.Job, logger *slog.Logger) *ActivityService {
	s := gocron.NewScheduler(time.UTC)
	s.SetMaxConcurrentJobs(1, gocron.RescheduleMode)
	s.SingletonModeAll()
	return &ActivityService{
		runner:    runner,
		jobs:      jobs,
		scheduler: s,
		logger:    logger,
		ctx:       context.Background(),
	}
}

// Start registers every job and starts the scheduler. Jobs marked
// run_on_start run once first, in order, before the schedule begins.
func (s *ActivityService) Start(ctx context.Context) error {
	s.ctx = ctx
	for _, job := range s.jobs {
		var sj *gocron.Scheduler
		if job.Every > 0 {
			sj = s.scheduler.Every(job.Every).WaitForSchedule()
		} else {
			sj = s.scheduler.Every(1).Day().At(job.At)
		}
		if _, err := sj.Tag(job.Name).Do(s.runJob, job); err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
		}
	}

	for _, job := range s.jobs {
		if job.RunOnStart {
			s.logger.Info("running job on start", "job", job.Name)
			s.runJob(job)
		}
	}

	s.scheduler.StartAsync()
	for _, j := range s.scheduler.Jobs() {
		s.logger.Info("job scheduled", "job", j.Tags(), "next_run", j.NextRun().UTC().Format(time.RFC3339))
	}
	return nil
}

func (s *ActivityService) Stop() {
	s.scheduler.Stop()
}

// Run starts the service and blocks until ctx is done.
func (s *ActivityService) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.logger.Info("stopping scheduler")
	s.Stop()
	return nil
}

// runJob never lets a cycle panic take the process down.
func (s *ActivityService) runJob(job config.Job) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("cycle panicked", "job", job.Name, "panic", p, "stack", string(debug.Stack()))
		}
	}()

	if s.ctx.Err() != nil {
		return
	}
	_, err := s.runner.RunCycle(s.ctx, job)
	switch {
	case errors.Is(err, ErrCycleRunning):
		s.logger.Warn("previous cycle still running, skipping", "job", job.Name)
	case err != nil:
		s.logger.Error("cycle failed", "job", job.Name, "error", err)
	}
	s.logNextRun(job.Name)
}

func (s *ActivityService) logNextRun(name string) {
	jobs, err := s.scheduler.FindJobsByTag(name)
	if err != nil || len(jobs) == 0 {
		return
	}
	s.logger.Info("next run", "job", name, "at", jobs[0].NextRun().UTC().Format(time.RFC3339))
}
