// Package task implements the Task subsystem a Job composes work out of:
// a shared pool of workers racing each task's execution against an
// Interrupter, with optional serialization for tasks that need to survive
// a pause/resume cycle.
package task

import (
	"context"
	"time"
)

// Outcome is what a single Task.Run call resolved to.
type Outcome int

const (
	// OutcomeDone indicates the task ran to completion.
	OutcomeDone Outcome = iota
	// OutcomePaused indicates the task observed a pause request and
	// stopped at a safe point; if the task is Serializable, its state was
	// captured via Serialize before returning.
	OutcomePaused
	// OutcomeCanceled indicates the task observed a cancel request and
	// stopped without an expectation of ever resuming.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomePaused:
		return "paused"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Interrupter lets a running Task observe pause/cancel requests from the
// Scheduler, mirroring the job system's own cooperative-interruption
// contract (pkg/job.Context.CheckInterrupt) at the finer-grained task
// level.
type Interrupter interface {
	// PauseRequested reports whether the scheduler has asked this task to
	// pause at its next safe point.
	PauseRequested() bool
	// CancelRequested reports whether the scheduler has asked this task to
	// stop immediately.
	CancelRequested() bool
}

// Task is a single unit of work a Scheduler can run.
type Task interface {
	// ID returns a stable identifier for this task, used in logs and for
	// re-dispatch after a pause.
	ID() string
	// Run executes the task, observing interrupter for cooperative
	// pause/cancel, and returns how it resolved.
	Run(ctx context.Context, interrupter Interrupter) (Outcome, error)
}

// PriorityTask is implemented by a Task that wants to jump the scheduler's
// queue ahead of default-priority peers.
type PriorityTask interface {
	WithPriority() bool
}

// TimeoutTask is implemented by a Task that declares a maximum run time,
// after which the Scheduler force-aborts it regardless of cooperation.
type TimeoutTask interface {
	WithTimeout() (timeout bool, duration time.Duration)
}

// Serializable is implemented by a Task whose state can be captured on
// pause and restored on resume.
type Serializable interface {
	Serialize() ([]byte, error)
	Deserialize(ctx context.Context, state []byte) error
}
