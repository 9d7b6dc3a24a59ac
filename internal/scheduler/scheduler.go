package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTaskTimeout is the per-task budget before a strategy evaluation is
// cancelled and counted as an execution error.
const DefaultTaskTimeout = 30 * time.Second

// DefaultPoolSize bounds how many strategy evaluations run concurrently.
const DefaultPoolSize = 8

// Task identifies one (strategy, symbol, account) evaluation to dispatch.
type Task struct {
	StrategyID string
	Symbol     string
	Account    string
}

// TaskFunc runs one dispatched task: load recent bars, evaluate the
// strategy, apply the signal policy, and place an order on accept.
type TaskFunc func(ctx context.Context, task Task) error

// Loader returns the tasks due to run on this tick: active strategies
// crossed with their active symbol mappings.
type Loader func(now time.Time) ([]Task, error)

// Scheduler fires Loader on Schedule and dispatches the resulting tasks
// onto a bounded worker pool, isolating failures per task.
//
// Grounded on core/engine.go's mainLoop/positionMonitorLoop ticker-over-a-
// stop-channel pattern, generalized from a single always-on tick loop to a
// cron-gated one with a worker pool underneath.
type Scheduler struct {
	schedule Schedule
	load     Loader
	exec     TaskFunc
	timeout  time.Duration
	poolSize int
	disabled func() bool
}

// New builds a Scheduler. disabled, if non-nil, is polled on every tick; a
// true result no-ops the tick (the runtime-disabled flag in spec).
func New(schedule Schedule, load Loader, exec TaskFunc, disabled func() bool) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		load:     load,
		exec:     exec,
		timeout:  DefaultTaskTimeout,
		poolSize: DefaultPoolSize,
		disabled: disabled,
	}
}

// WithTimeout overrides the per-task timeout.
func (s *Scheduler) WithTimeout(d time.Duration) *Scheduler {
	s.timeout = d
	return s
}

// WithPoolSize overrides the worker pool size.
func (s *Scheduler) WithPoolSize(n int) *Scheduler {
	s.poolSize = n
	return s
}

// Run drives the scheduler until ctx is cancelled, checking the schedule
// once a second and dispatching at most once per matching minute, on the
// first tick inside it.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	log.Info().Msg("🗓️ scheduler started")

	var lastFired time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("🗓️ scheduler stopped")
			return
		case now := <-ticker.C:
			minute := now.Truncate(time.Minute)
			if minute.Equal(lastFired) || !s.schedule.Matches(now) {
				continue
			}
			lastFired = minute
			s.fire(ctx, now)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, now time.Time) {
	if s.disabled != nil && s.disabled() {
		log.Debug().Msg("🗓️ scheduler tick skipped: runtime-disabled")
		return
	}

	tasks, err := s.load(now)
	if err != nil {
		log.Error().Err(err).Msg("❌ failed to load scheduled tasks")
		return
	}
	if len(tasks) == 0 {
		return
	}

	s.dispatch(ctx, tasks)
}

// dispatch runs tasks across a bounded worker pool. A fault in one task
// (error or panic) is logged and does not abort the batch.
func (s *Scheduler) dispatch(ctx context.Context, tasks []Task) {
	sem := make(chan struct{}, s.poolSize)
	done := make(chan struct{})
	remaining := len(tasks)

	for _, task := range tasks {
		sem <- struct{}{}
		go func(t Task) {
			defer func() {
				<-sem
				done <- struct{}{}
			}()
			s.runOne(ctx, t)
		}(task)
	}

	for remaining > 0 {
		<-done
		remaining--
	}
}

func (s *Scheduler) runOne(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("strategy", task.StrategyID).Str("symbol", task.Symbol).Msg("❌ strategy evaluation task panicked")
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.exec(taskCtx, task); err != nil {
		log.Error().Err(err).Str("strategy", task.StrategyID).Str("symbol", task.Symbol).Str("account", task.Account).Msg("❌ strategy evaluation task failed")
	}
}
