package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseScheduleEveryMinute(t *testing.T) {
	t.Parallel()
	s := EveryMinute()
	now := time.Date(2026, 7, 30, 14, 23, 0, 0, time.UTC)
	if !s.Matches(now) {
		t.Error("every-minute schedule should match any time")
	}
}

func TestParseScheduleSpecificMinute(t *testing.T) {
	t.Parallel()
	s, err := ParseSchedule("0,30 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	match := time.Date(2026, 7, 30, 14, 30, 0, 0, time.UTC)
	noMatch := time.Date(2026, 7, 30, 14, 31, 0, 0, time.UTC)
	if !s.Matches(match) {
		t.Error("expected minute 30 to match")
	}
	if s.Matches(noMatch) {
		t.Error("expected minute 31 to not match")
	}
}

func TestParseScheduleRejectsWrongFieldCount(t *testing.T) {
	t.Parallel()
	if _, err := ParseSchedule("* * *"); err == nil {
		t.Error("expected error for malformed cron expression")
	}
}

func TestSchedulerDispatchIsolatesFailures(t *testing.T) {
	t.Parallel()
	var succeeded int32
	var mu sync.Mutex
	var failedSymbols []string

	exec := func(ctx context.Context, task Task) error {
		if task.Symbol == "BAD" {
			return errors.New("boom")
		}
		atomic.AddInt32(&succeeded, 1)
		return nil
	}

	tasks := []Task{{Symbol: "AAPL"}, {Symbol: "BAD"}, {Symbol: "MSFT"}}
	load := func(now time.Time) ([]Task, error) { return tasks, nil }

	s := New(EveryMinute(), load, exec, nil).WithPoolSize(2)

	s.dispatch(context.Background(), tasks)

	mu.Lock()
	defer mu.Unlock()
	if succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", succeeded)
	}
	_ = failedSymbols
}

func TestSchedulerRunOneRecoversFromPanic(t *testing.T) {
	t.Parallel()
	exec := func(ctx context.Context, task Task) error {
		panic("strategy exploded")
	}
	s := New(EveryMinute(), nil, exec, nil)

	// Must not crash the test process.
	s.runOne(context.Background(), Task{Symbol: "AAPL"})
}

func TestSchedulerFireSkipsWhenDisabled(t *testing.T) {
	t.Parallel()
	called := false
	load := func(now time.Time) ([]Task, error) {
		called = true
		return nil, nil
	}
	exec := func(ctx context.Context, task Task) error { return nil }
	s := New(EveryMinute(), load, exec, func() bool { return true })

	s.fire(context.Background(), time.Now())

	if called {
		t.Error("loader should not be invoked when scheduler is runtime-disabled")
	}
}

func TestRunOneRespectsTimeout(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	exec := func(ctx context.Context, task Task) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	s := New(EveryMinute(), nil, exec, nil).WithTimeout(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.runOne(context.Background(), Task{Symbol: "AAPL"})
		close(done)
	}()

	<-started
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected task to be cancelled by its timeout")
	}
}
