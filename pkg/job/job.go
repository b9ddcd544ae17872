// Package job implements the durable, resumable job system: a bounded
// pool of runners driving Handlers against a priority dispatch queue, with
// checkpointed progress reports a client can long-poll via pkg/state.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is a job's lifecycle state.
type Status int

const (
	StatusQueued Status = iota
	StatusRunning
	StatusPaused
	StatusCompleted
	// StatusCompletedWithErrors is a successful run that accumulated one or
	// more non-critical per-item errors (e.g. I/O failures on a single
	// file); the job still ran to completion, so it is distinct from
	// StatusFailed.
	StatusCompletedWithErrors
	StatusFailed
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusCompletedWithErrors:
		return "completed_with_errors"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether a job in this status will never transition
// again without an explicit resume/re-submit.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompletedWithErrors || s == StatusFailed || s == StatusCanceled
}

// ErrPauseRequested and ErrCancelRequested are returned by CheckInterrupt
// when a handler should yield control back to the manager. A handler
// receiving ErrPauseRequested is expected to checkpoint before returning;
// one receiving ErrCancelRequested should return immediately without
// checkpointing.
var (
	ErrPauseRequested  = errors.New("job: pause requested")
	ErrCancelRequested = errors.New("job: cancel requested")
)

// Progress is a structured progress update a handler reports during a run.
type Progress struct {
	CompletedTaskCount int64
	TaskCount          int64
	Message            string
}

// Report is the externally visible, persisted state of one job, and is
// what gets serialized to the job_reports table and replayed across a
// daemon restart.
type Report struct {
	ID        string
	Type      string
	Priority  bool
	Resumable bool
	Status    Status
	Progress  Progress
	Log       []string
	// NonCriticalErrors accumulates per-item errors (e.g. a single file's
	// hashing or I/O failure) that don't fail the job outright, per the
	// failure model's distinction between StatusFailed and
	// StatusCompletedWithErrors.
	NonCriticalErrors []string
	Error             string
	Checkpoint        []byte
	// Output holds the handler's typed result once the job completes
	// successfully. Callers type-assert it against the result type their
	// job type is documented to produce.
	Output    any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Handler runs a job's actual work given a Context, producing a typed
// output. Output is returned as `any` since Go handlers for many distinct
// job types cannot share one concrete result type without generics
// spilling into every caller of the manager; callers type-assert the
// result against the job type they submitted.
type Handler interface {
	Run(ctx context.Context, jc *Context) (any, error)
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(ctx context.Context, jc *Context) (any, error)

func (f HandlerFunc) Run(ctx context.Context, jc *Context) (any, error) { return f(ctx, jc) }

// LibraryAccessor exposes the owning library to a running handler, kept as
// a narrow interface so pkg/job has no import-time dependency on
// pkg/library.
type LibraryAccessor interface {
	LibraryID() string
}

// Submission describes a job to enqueue.
type Submission struct {
	Type      string
	Priority  bool
	Resumable bool
	Handler   Handler
	Library   LibraryAccessor
	// Resume, if non-nil, supplies a previously checkpointed state for a
	// resumable job being re-queued after a pause or restart.
	Resume []byte
}
