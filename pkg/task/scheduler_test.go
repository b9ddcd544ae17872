package task

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTask struct {
	id       string
	priority bool
	run      func(ctx context.Context, interrupter Interrupter) (Outcome, error)
}

func (t *fakeTask) ID() string           { return t.id }
func (t *fakeTask) WithPriority() bool   { return t.priority }
func (t *fakeTask) Run(ctx context.Context, interrupter Interrupter) (Outcome, error) {
	return t.run(ctx, interrupter)
}

func TestSchedulerRunsTaskToCompletion(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	handle := s.Dispatch(&fakeTask{id: "t1", run: func(context.Context, Interrupter) (Outcome, error) {
		return OutcomeDone, nil
	}})

	outcome, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if outcome != OutcomeDone {
		t.Errorf("expected OutcomeDone, got %v", outcome)
	}
}

func TestSchedulerCancelStopsCooperatingTask(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	started := make(chan struct{})
	handle := s.Dispatch(&fakeTask{id: "t1", run: func(_ context.Context, interrupter Interrupter) (Outcome, error) {
		close(started)
		for !interrupter.CancelRequested() {
			time.Sleep(time.Millisecond)
		}
		return OutcomeCanceled, nil
	}})

	<-started
	handle.Cancel()

	outcome, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if outcome != OutcomeCanceled {
		t.Errorf("expected OutcomeCanceled, got %v", outcome)
	}
}

func TestSchedulerForceAbortsOnTimeout(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	task := &timeoutTask{id: "slow", duration: 10 * time.Millisecond}
	handle := s.Dispatch(task)

	outcome, err := handle.Wait(context.Background())
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if outcome != OutcomeCanceled {
		t.Errorf("expected OutcomeCanceled on force-abort, got %v", outcome)
	}
	if !handle.WasForceAborted() {
		t.Error("expected WasForceAborted to be true")
	}
}

type timeoutTask struct {
	id       string
	duration time.Duration
}

func (t *timeoutTask) ID() string { return t.id }
func (t *timeoutTask) WithTimeout() (bool, time.Duration) { return true, t.duration }
func (t *timeoutTask) Run(ctx context.Context, _ Interrupter) (Outcome, error) {
	select {
	case <-time.After(time.Hour):
		return OutcomeDone, nil
	case <-ctx.Done():
		return OutcomeCanceled, ctx.Err()
	}
}

func TestSchedulerPriorityRunsBeforeQueuedNonPriority(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	release := make(chan struct{})
	blockHandle := s.Dispatch(&fakeTask{id: "blocker", run: func(context.Context, Interrupter) (Outcome, error) {
		<-release
		return OutcomeDone, nil
	}})
	_ = blockHandle
	time.Sleep(10 * time.Millisecond)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context, Interrupter) (Outcome, error) {
		return func(context.Context, Interrupter) (Outcome, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return OutcomeDone, nil
		}
	}

	s.Dispatch(&fakeTask{id: "low", run: record("low")})
	s.Dispatch(&fakeTask{id: "high", priority: true, run: record("high")})

	close(release)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "high" {
		t.Errorf("expected priority task to run first, got %v", order)
	}
}
