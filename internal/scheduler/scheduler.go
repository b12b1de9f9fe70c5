// Package scheduler runs per-source ingestion callbacks on independent
// cron schedules, serialized behind a single mutex so only one ingestion
// task touches the data/vectorstore at a time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
)

// Callback is invoked when a job's schedule fires. It receives ctx so
// long-running ingestion can observe cancellation.
type Callback func(ctx context.Context) error

type job struct {
	name     string
	schedule cron.Schedule
	callback Callback
	nextRun  time.Time
}

// Scheduler polls a set of named jobs at PollInterval, running any whose
// next scheduled time has passed. Callbacks run serially, holding Mutex,
// so ingestion for one source never overlaps another's.
type Scheduler struct {
	PollInterval time.Duration
	Mutex        sync.Locker

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *logging.Logger
}

// New builds a Scheduler. If mutex is nil, the scheduler creates its own
// sync.Mutex so callbacks still serialize against each other.
func New(pollInterval time.Duration, mutex sync.Locker, logger *logging.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if mutex == nil {
		mutex = &sync.Mutex{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		PollInterval: pollInterval,
		Mutex:        mutex,
		jobs:         map[string]*job{},
		logger:       logger,
	}
}

// AddJob registers callback to run on cronExpr's schedule under name,
// replacing any existing job with that name. cronExpr uses the standard
// five-field cron syntax.
func (s *Scheduler) AddJob(name, cronExpr string, callback Callback) error {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q for %s: %w", cronExpr, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = &job{
		name:     name,
		schedule: schedule,
		callback: callback,
		nextRun:  schedule.Next(time.Now()),
	}
	return nil
}

// RemoveJob unregisters name, if present.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Start begins the background polling loop. Idempotent: calling Start on
// an already-running Scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	s.logger.Info(ctx, "scheduler started", zap.Duration("poll_interval", s.PollInterval))
	go s.run(ctx)
	return nil
}

// Stop signals the worker to exit and waits up to timeout for it to
// finish. Idempotent: calling Stop when not running is a no-op.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: stop timed out after %s", timeout)
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "scheduler loop panicked, recovering", zap.Any("panic", r))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs every due job serially, in an arbitrary but stable order.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.nextRun.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.runJob(ctx, j)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "scheduled job panicked, continuing", zap.String("job", j.name), zap.Any("panic", r))
		}
	}()

	if err := j.callback(ctx); err != nil {
		s.logger.Warn(ctx, "scheduled job failed", zap.String("job", j.name), zap.Error(err))
	}

	s.mu.Lock()
	j.nextRun = j.schedule.Next(time.Now())
	s.mu.Unlock()
}
