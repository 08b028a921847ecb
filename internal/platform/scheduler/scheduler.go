package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named jobs on cron specs. Specs accept an optional
// seconds field and descriptors such as "@every 2s".
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *slog.Logger
}

func New(logger *slog.Logger, jobTimeout time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.Recover(cronLogger{logger: logger}),
				cron.SkipIfStillRunning(cronLogger{logger: logger}),
			),
		),
		timeout: jobTimeout,
		logger:  logger,
	}
}

// Add registers job under name. Each run gets its own context bounded by the
// scheduler's job timeout and derived from ctx.
func (s *Scheduler) Add(ctx context.Context, name string, spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(runCtx); err != nil {
			s.logger.Error("scheduled job failed",
				"event", "scheduler_job_failed",
				"module", "internal/platform/scheduler",
				"layer", "platform",
				"job", name,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err.Error(),
			)
			return
		}
		s.logger.Debug("scheduled job completed",
			"event", "scheduler_job_completed",
			"module", "internal/platform/scheduler",
			"layer", "platform",
			"job", name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		"event", "scheduler_started",
		"module", "internal/platform/scheduler",
		"layer", "platform",
		"jobs", len(s.cron.Entries()),
	)
}

// Stop prevents new runs and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, append([]any{
		"event", "cron_info",
		"module", "internal/platform/scheduler",
		"layer", "platform",
	}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{
		"event", "cron_error",
		"module", "internal/platform/scheduler",
		"layer", "platform",
		"error", err.Error(),
	}, keysAndValues...)...)
}
