// Package scheduler runs periodic maintenance jobs on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"scholar/scholar/utils/logging"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one maintenance task. Returning an error only logs it.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	names   []string
}

func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{}))),
		timeout: time.Minute,
	}
}

// Add registers job under spec, e.g. "@every 1h" or "0 3 * * *".
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.names = append(s.names, name)
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	defer logging.LogDuration(ctx, "job_"+name)()
	if err := job(ctx); err != nil {
		logging.ErrorLogger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
	}
}

// RunNow executes every registered job once, synchronously.
func (s *Scheduler) RunNow() {
	for _, e := range s.cron.Entries() {
		e.WrappedJob.Run()
	}
}

func (s *Scheduler) Jobs() []string { return s.names }

func (s *Scheduler) Start() {
	s.cron.Start()
	logging.AppLogger.Info("Scheduler started", zap.Strings("jobs", s.names))
}

// Stop halts the schedule and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts the zap globals to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.AppLogger.Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.ErrorLogger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
