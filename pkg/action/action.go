// Package action implements the action layer described by spec.md §4.5:
// filesystem operations (copy, move, dedup) expressed as a validated Input,
// built via a fluent Builder, dispatched as an Action through an
// ActionManager that looks up the registered Handler by name and either
// executes inline or hands the work off to the job system.
package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/sd-io/sdcore/pkg/job"
)

// Input is implemented by every action's parameter struct. Validate performs
// structural checks only (non-empty fields, well-formed paths); filesystem-
// aware checks (source existence, destination parent existence) belong to
// the action's Builder, which has access to the local filesystem.
type Input interface {
	Validate() error
}

// Output is returned to the caller after dispatching an Action. JobID is
// populated when the handler produced a job rather than running inline;
// Result carries whatever an inline handler computed.
type Output struct {
	JobID  string
	Result any
}

// JobSubmitter is the subset of job.Manager a Handler needs to enqueue long-
// running work rather than blocking the caller.
type JobSubmitter interface {
	Submit(job.Submission) (string, error)
}

// Handler implements one named action. Validate receives the Input (which
// it type-asserts to its own input type) for an extra pass of handler-specific checks (e.g.
// cross-field constraints the Builder couldn't know about). Dispatch
// performs the action: a handler for a small operation executes inline and
// returns a populated Output.Result; a handler for a long operation submits
// a job via jobs and returns Output.JobID.
type Handler interface {
	Name() string
	Validate(input Input) error
	Dispatch(ctx context.Context, input Input, jobs JobSubmitter) (Output, error)
}

// Action is the value produced by a Builder and passed to an ActionManager:
// a handler name paired with its validated input.
type Action struct {
	Name  string
	Input Input
}

// Manager is the Action Manager of spec.md §4.5: a registry of Handlers
// keyed by name, dispatching through whichever handler owns an Action's
// Name.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	jobs     JobSubmitter
}

// NewManager constructs an empty Manager that submits long-running actions
// through jobs.
func NewManager(jobs JobSubmitter) *Manager {
	return &Manager{
		handlers: make(map[string]Handler),
		jobs:     jobs,
	}
}

// Register adds a Handler to the registry, keyed by its Name(). Registering
// a second handler under the same name replaces the first.
func (m *Manager) Register(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[h.Name()] = h
}

// Dispatch looks up the handler for a.Name, validates a.Input against it,
// and runs the handler.
func (m *Manager) Dispatch(ctx context.Context, a Action) (Output, error) {
	m.mu.RLock()
	h, ok := m.handlers[a.Name]
	m.mu.RUnlock()
	if !ok {
		return Output{}, fmt.Errorf("action: no handler registered for %q", a.Name)
	}

	if err := a.Input.Validate(); err != nil {
		return Output{}, fmt.Errorf("action: invalid input: %w", err)
	}
	if err := h.Validate(a.Input); err != nil {
		return Output{}, fmt.Errorf("action: %s: %w", a.Name, err)
	}

	return h.Dispatch(ctx, a.Input, m.jobs)
}
