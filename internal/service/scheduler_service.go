package service

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// everyMinute fires at second zero of every minute.
const everyMinute = "0 * * * * *"

// SchedulerService wraps cron-based jobs. A job still running when its next
// activation comes is skipped rather than stacked.
type SchedulerService struct {
	cron *cron.Cron
}

func NewSchedulerService(loc *time.Location) *SchedulerService {
	if loc == nil {
		loc = time.UTC
	}
	logger := cron.PrintfLogger(log.Default())
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Schedule registers job under a six-field cron spec (with seconds).
func (s *SchedulerService) Schedule(spec string, job func()) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, job)
}

// ScheduleEveryMinute registers job at the start of every wall-clock minute.
func (s *SchedulerService) ScheduleEveryMinute(job func()) (cron.EntryID, error) {
	return s.Schedule(everyMinute, job)
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
