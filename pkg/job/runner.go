package job

import (
	"container/heap"
	"context"
	"fmt"
)

// runLoop is a single runner goroutine: pop the highest-priority pending
// job, drive its handler to completion (or interruption), and repeat until
// the manager is shut down.
func (m *Manager) runLoop() {
	defer m.wg.Done()
	for {
		item, ok := m.dequeue()
		if !ok {
			return
		}
		m.execute(item)
	}
}

// dequeue blocks until a job is available or the manager is shutting
// down, in which case it returns ok=false.
func (m *Manager) dequeue() (*queueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) == 0 && !m.shutdown {
		m.cond.Wait()
	}
	if m.shutdown && len(m.queue) == 0 {
		return nil, false
	}
	return heap.Pop(&m.queue).(*queueItem), true
}

// execute drives one job's handler to completion, updating its report at
// each transition. The handler itself always runs in its own goroutine so
// that a force-abort can free this worker to pick up the next queued job
// immediately, rather than blocking on a handler that ignores its context
// (Go has no way to truly preempt a running goroutine, so a force-aborted
// handler that never checks ctx.Done() is left running in the background
// until it happens to notice).
func (m *Manager) execute(item *queueItem) {
	interrupt := &interruptState{}
	runCtx, cancel := context.WithCancel(context.Background())

	rj := &runningJob{submission: item.submission, interrupt: interrupt, cancelFn: cancel}
	m.mu.Lock()
	m.running[item.reportID] = rj
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.running, item.reportID)
		m.mu.Unlock()
	}()

	m.updateReport(item.reportID, func(r *Report) { r.Status = StatusRunning })

	resumeState, _ := m.resumeStateFor(item.reportID)
	jc := &Context{
		reportID:    item.reportID,
		manager:     m,
		library:     item.submission.Library,
		interrupt:   interrupt,
		resumeState: resumeState,
	}

	type result struct {
		output any
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		output, err := m.runHandler(runCtx, item.submission.Handler, jc)
		resultCh <- result{output, err}
	}()

	select {
	case r := <-resultCh:
		m.finish(item.reportID, r.output, r.err, interrupt)
	case <-runCtx.Done():
		m.updateReport(item.reportID, func(r *Report) {
			r.Status = StatusFailed
			r.Error = "job: force-aborted"
		})
	}
}

// runHandler invokes the handler, recovering a panic into an error per the
// failure model's "panic/unwind in handler -> failed" rule.
func (m *Manager) runHandler(ctx context.Context, h Handler, jc *Context) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job: handler panicked: %v", r)
		}
	}()
	return h.Run(ctx, jc)
}

// resumeStateFor loads a previously checkpointed state for a job being
// re-queued, if any.
func (m *Manager) resumeStateFor(id string) ([]byte, error) {
	report, err := m.store.Load(id)
	if err != nil {
		return nil, err
	}
	return report.Checkpoint, nil
}

// finish applies the outcome of a handler run to the job's persisted
// report per the failure model.
func (m *Manager) finish(id string, output any, err error, interrupt *interruptState) {
	switch {
	case err == ErrCancelRequested || interrupt.cancelRequested.Load():
		m.updateReport(id, func(r *Report) { r.Status = StatusCanceled })
	case err == ErrPauseRequested:
		m.updateReport(id, func(r *Report) { r.Status = StatusPaused })
	case err != nil:
		m.updateReport(id, func(r *Report) {
			r.Status = StatusFailed
			r.Error = err.Error()
		})
	default:
		m.updateReport(id, func(r *Report) {
			if len(r.NonCriticalErrors) > 0 {
				r.Status = StatusCompletedWithErrors
			} else {
				r.Status = StatusCompleted
			}
			r.Output = output
		})
	}
}

// updateReport loads, mutates, persists, and notifies on a report,
// acquiring no manager-wide lock beyond what the store itself needs -
// report mutation is serialized per-job by the fact that only one runner
// goroutine ever executes a given job at a time.
func (m *Manager) updateReport(id string, mutate func(*Report)) {
	report, err := m.store.Load(id)
	if err != nil {
		return
	}
	mutate(report)
	report.UpdatedAt = timeNow()
	if saveErr := m.store.Save(report); saveErr != nil && m.logger != nil {
		m.logger.Error(fmt.Errorf("job %s: failed to persist report: %w", id, saveErr))
	}
	m.tracker.NotifyOfChange()
}

func (m *Manager) appendLog(id string, line string) {
	m.updateReport(id, func(r *Report) { r.Log = append(r.Log, line) })
}

func (m *Manager) appendNonCriticalError(id string, msg string) {
	m.updateReport(id, func(r *Report) { r.NonCriticalErrors = append(r.NonCriticalErrors, msg) })
}

func (m *Manager) updateProgress(id string, progress Progress) {
	m.updateReport(id, func(r *Report) { r.Progress = progress })
}

func (m *Manager) checkpoint(id string, checkpointState []byte) error {
	m.updateReport(id, func(r *Report) { r.Checkpoint = checkpointState })
	return nil
}
