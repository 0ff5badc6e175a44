// Package schedule runs task executions on a recurring schedule.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// Executor runs one task execution. Satisfied by the engine.
type Executor interface {
	Execute(ctx context.Context, task domain.TaskExecution) ([]domain.ExecutionResult, error)
}

// Entry is one recurring task execution.
type Entry struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" or duration "30m"
	Task     domain.TaskExecution
}

// Scheduler fires task executions on cron expressions or fixed intervals.
type Scheduler struct {
	cron     *cron.Cron
	executor Executor
	bus      domain.EventBus
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. bus may be nil.
func New(executor Executor, bus domain.EventBus, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		executor: executor,
		bus:      bus,
		logger:   logger,
	}
}

// Add registers a recurring entry. The schedule string is tried as a cron
// expression first, then as a duration.
func (s *Scheduler) Add(entry Entry) error {
	if entry.Name == "" {
		return fmt.Errorf("scheduler: entry has no name")
	}
	sched, err := parseSchedule(entry.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %q: %w", entry.Schedule, entry.Name, err)
	}

	s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(entry) }))
	s.logger.Info("schedule added", "name", entry.Name, "schedule", entry.Schedule)
	return nil
}

func (s *Scheduler) fire(entry Entry) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		s.logger.Debug("scheduler stopped, skipping entry", "name", entry.Name)
		return
	}

	s.publishFired(ctx, entry.Name)

	start := time.Now()
	results, err := s.executor.Execute(ctx, entry.Task)
	if err != nil {
		s.logger.Warn("scheduled task failed",
			"name", entry.Name,
			"error", err,
			"duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled task completed",
		"name", entry.Name,
		"results", len(results),
		"duration", time.Since(start))
}

// Start begins firing entries. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop cancels in-flight executions and waits for running jobs to return.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	s.ctx = nil
	<-s.cron.Stop().Done()
	s.started = false
}

func (s *Scheduler) publishFired(ctx context.Context, name string) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return
	}
	s.bus.Publish(ctx, domain.Event{Type: domain.EventScheduleFired, Timestamp: time.Now(), Payload: data})
}

// parseSchedule tries a cron expression first, then a duration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return &constantDelay{delay: dur}, nil
}

// constantDelay fires at a fixed interval. Unlike cron.Every it keeps
// sub-second delays intact.
type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
