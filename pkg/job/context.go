package job

import (
	"sync/atomic"
)

// interruptState holds the pause/cancel flags a Context's CheckInterrupt
// consults, set from outside the running handler's goroutine.
type interruptState struct {
	pauseRequested  atomic.Bool
	cancelRequested atomic.Bool
}

// Context is the JobContext API available to a running Handler: logging,
// structured progress, cooperative interruption, checkpointing, and
// library accessors.
type Context struct {
	reportID string
	manager  *Manager
	library  LibraryAccessor
	interrupt *interruptState

	// resumeState is the checkpoint a resumable job was re-queued with, if
	// any; a handler reads this once at the start of Run to restore state.
	resumeState []byte
}

// Log attaches a line to the job's textual progress log.
func (c *Context) Log(msg string) {
	c.manager.appendLog(c.reportID, msg)
}

// Progress emits a structured progress update. Every call saves the update
// to the job's report and signals the manager's change tracker; the calls
// are not rate-limited and no completion-time estimate is computed. A
// long-polling client sees all updates made between two of its polls as
// one change.
func (c *Context) Progress(update Progress) {
	c.manager.updateProgress(c.reportID, update)
}

// CheckInterrupt is the suspension point a handler must call inside tight
// per-item loops. It returns ErrCancelRequested or ErrPauseRequested if the
// manager has asked this job to stop, and nil otherwise.
func (c *Context) CheckInterrupt() error {
	if c.interrupt.cancelRequested.Load() {
		return ErrCancelRequested
	}
	if c.interrupt.pauseRequested.Load() {
		return ErrPauseRequested
	}
	return nil
}

// Checkpoint persists the handler's serialized state to the job report, to
// be read back via ResumeState on a subsequent resume.
func (c *Context) Checkpoint(state []byte) error {
	return c.manager.checkpoint(c.reportID, state)
}

// ResumeState returns the checkpoint a resumable job was re-queued with,
// or nil for a fresh (non-resumed) run.
func (c *Context) ResumeState() []byte {
	return c.resumeState
}

// Library returns the library this job is running against.
func (c *Context) Library() LibraryAccessor {
	return c.library
}

// LibraryDB returns the database handle for this job's library, as
// supplied by the Manager's configured DBProvider. It is typed as `any`
// (typically a *sql.DB) so pkg/job has no import-time dependency on a
// specific database package.
func (c *Context) LibraryDB() any {
	if c.manager.dbProvider == nil {
		return nil
	}
	return c.manager.dbProvider(c.library)
}

// AddNonCriticalError records a per-item error without failing the job,
// per the job system's failure model for single-item I/O errors. It
// accumulates into the report's NonCriticalErrors array rather than the
// textual Log, so a successful run that recorded any promotes its final
// status to StatusCompletedWithErrors instead of StatusCompleted.
func (c *Context) AddNonCriticalError(msg string) {
	c.manager.appendNonCriticalError(c.reportID, msg)
}
