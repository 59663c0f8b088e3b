package chrono

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/telemetry"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	report_scheduler_reschedule = "scheduler.reschedule"
)

// Scheduler runs a single job on a fixed interval using `github.com/robfig/cron/v3`.
// A run that is still in progress when the next tick fires makes that tick a no-op,
// this also holds across Reschedule.
type Scheduler struct {
	cron    *cron.Cron
	tel     telemetry.API
	job     func(ctx context.Context)
	running sync.Mutex

	mu       sync.Mutex
	entry    cron.EntryID
	interval time.Duration
	ctx      context.Context
}

func NewScheduler(location *time.Location, tel telemetry.API, job func(ctx context.Context)) *Scheduler {
	assert.NotNil(location, "scheduler location")
	assert.NotNil(tel, "telemetry")
	assert.NotNil(job, "scheduled job")

	logger := cronLogger{tel: tel}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithLocation(location),
			cron.WithChain(cron.Recover(logger)),
		),
		tel: tel,
		job: job,
	}
}

// Start schedules the job every interval, each run gets ctx so an in-flight run
// stops when ctx is cancelled. The scheduler itself stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	assert.Positive(interval, "scheduler interval")

	s.mu.Lock()
	s.ctx = ctx
	s.interval = interval
	s.entry = s.cron.Schedule(cron.Every(interval), s.runner())
	s.mu.Unlock()

	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}

func (s *Scheduler) runner() cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if !s.running.TryLock() {
			s.tel.ReportDebug("skipped tick, previous run still in progress")
			return
		}
		defer s.running.Unlock()
		s.job(ctx)
	})
}

// Reschedule replaces the job entry so the next run happens one new interval from now.
func (s *Scheduler) Reschedule(interval time.Duration) error {
	if interval <= 0 {
		err := fmt.Errorf("interval must be positive, got %s", interval)
		s.tel.ReportWarning(report_scheduler_reschedule, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return fmt.Errorf("scheduler has not been started")
	}
	if interval == s.interval {
		return nil
	}

	s.cron.Remove(s.entry)
	s.entry = s.cron.Schedule(cron.Every(interval), s.runner())
	s.tel.ReportDebug("rescheduled sweep", s.interval.String(), interval.String())
	s.interval = interval
	return nil
}

// Interval returns the interval currently in effect.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(
		fmt.Sprintf("cron: %s", msg),
		l.formatParams(keysAndValues)...,
	)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"cron",
		fmt.Errorf("%s: %w", msg, err),
		l.formatParams(keysAndValues),
	)
}

// RunNow runs the job on the calling goroutine unless a run is already in progress,
// it reports whether the job ran.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	if !s.running.TryLock() {
		return false
	}
	defer s.running.Unlock()
	s.job(ctx)
	return true
}
