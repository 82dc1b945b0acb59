package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs background jobs on fixed intervals. Intervals count from
// Start, not from the wall clock, and a job still running when its next turn
// comes is skipped.
type Scheduler struct {
	c *cron.Cron
}

func New() *Scheduler {
	logger := slogLogger{}
	return &Scheduler{
		c: cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
	}
}

// Every registers job to run every interval (rounded down to whole seconds, minimum one second).
func (s *Scheduler) Every(interval time.Duration, job func()) cron.EntryID {
	id := s.c.Schedule(cron.Every(interval), cron.FuncJob(job))
	slog.Info("scheduler: added job", "entry_id", id, "interval", interval.String())
	return id
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts scheduling. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.c.Stop()
}

// slogLogger adapts cron's logger to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
