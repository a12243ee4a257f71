package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gastos/internal/log"
	"gastos/internal/services"
)

// Scheduler fires the monthly report from an in-process cron.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	runner   Runner
	logger   *log.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewScheduler parses spec in loc. spec is a standard five-field
// expression or a descriptor such as @monthly.
func NewScheduler(spec string, loc *time.Location, runner Runner, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.WithComponent(log.ComponentScheduler)

	full := withTimezone(spec, loc)
	schedule, err := cron.ParseStandard(full)
	if err != nil {
		return nil, fmt.Errorf("parse report cron %q: %w", spec, err)
	}

	cl := cronLogger{logger}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		schedule: schedule,
		runner:   runner,
		logger:   logger,
		ctx:      context.Background(),
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

func withTimezone(spec string, loc *time.Location) string {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "CRON_TZ=") || strings.HasPrefix(spec, "TZ=") {
		return spec
	}
	return fmt.Sprintf("CRON_TZ=%s %s", loc.String(), spec)
}

// Start runs the cron until ctx is done. Runs started by the cron use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.InfoContext(ctx, "Report scheduler started", "next_run", s.Next(time.Now()).Format(time.RFC3339))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the cron and waits for a running report to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	out := s.runner.Run(ctx, services.Trigger{Source: services.SourceScheduler})
	s.logger.InfoContext(ctx, "Scheduled report finished",
		log.FieldRunID, out.RunID,
		log.FieldState, string(out.State),
		"next_run", s.Next(time.Now()).Format(time.RFC3339))
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, log.FieldError, err)...)
}
