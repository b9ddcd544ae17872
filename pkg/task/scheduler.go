package task

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
)

// interrupter is the Scheduler's concrete Interrupter implementation,
// shared between the scheduler goroutine driving a task and whatever
// external caller requests pause/cancel for it.
type interrupter struct {
	pause  atomic.Bool
	cancel atomic.Bool
}

func (i *interrupter) PauseRequested() bool  { return i.pause.Load() }
func (i *interrupter) CancelRequested() bool { return i.cancel.Load() }

// Handle is returned for a dispatched task, carrying its eventual outcome
// or, for a paused/aborted task, the task itself for re-dispatch.
type Handle struct {
	Task        Task
	done        chan struct{}
	outcome     Outcome
	err         error
	forceAbort  bool
	interrupter *interrupter
}

// Wait blocks until the task completes, pauses, is canceled, or ctx is
// done (in which case ctx.Err() is returned and the task continues
// running in the background).
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	case <-ctx.Done():
		return OutcomePaused, ctx.Err()
	}
}

// Pause requests the underlying task pause at its next safe point.
func (h *Handle) Pause() { h.interrupter.pause.Store(true) }

// Cancel requests the underlying task stop as soon as it observes the
// request.
func (h *Handle) Cancel() { h.interrupter.cancel.Store(true) }

// WasForceAborted reports whether the task was stopped by its declared
// timeout rather than completing, pausing, or being cooperatively
// canceled.
func (h *Handle) WasForceAborted() bool { return h.forceAbort }

// dispatch is one task queued for a worker, ordered the same way the job
// manager's own queue is: priority first, then FIFO.
type dispatch struct {
	task     Task
	handle   *Handle
	priority bool
	sequence int64
}

type dispatchQueue []*dispatch

func (q dispatchQueue) Len() int { return len(q) }
func (q dispatchQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority
	}
	return q[i].sequence < q[j].sequence
}
func (q dispatchQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *dispatchQueue) Push(x any)   { *q = append(*q, x.(*dispatch)) }
func (q *dispatchQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Scheduler runs a configurable number of workers pulling from a priority
// queue of tasks, racing each task's execution against its Interrupter and
// optional declared timeout.
type Scheduler struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    dispatchQueue
	sequence int64
	shutdown bool
	wg       sync.WaitGroup
}

// NewScheduler constructs a Scheduler with workerCount worker goroutines.
func NewScheduler(workerCount int) *Scheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go s.workerLoop()
	}
	return s
}

// Dispatch enqueues a task and returns a Handle for tracking and
// interrupting it.
func (s *Scheduler) Dispatch(t Task) *Handle {
	priority := false
	if pt, ok := t.(PriorityTask); ok {
		priority = pt.WithPriority()
	}

	handle := &Handle{Task: t, done: make(chan struct{}), interrupter: &interrupter{}}

	s.mu.Lock()
	s.sequence++
	heap.Push(&s.queue, &dispatch{task: t, handle: handle, priority: priority, sequence: s.sequence})
	s.cond.Signal()
	s.mu.Unlock()

	return handle
}

// Stop signals every worker to exit once its current task completes (or
// the queue drains) and waits for them to do so.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.shutdown = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	for {
		item, ok := s.dequeue()
		if !ok {
			return
		}
		s.run(item)
	}
}

func (s *Scheduler) dequeue() (*dispatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.shutdown {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	return heap.Pop(&s.queue).(*dispatch), true
}

func (s *Scheduler) run(item *dispatch) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if tt, ok := item.task.(TimeoutTask); ok {
		if hasTimeout, duration := tt.WithTimeout(); hasTimeout {
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}
	}

	resultCh := make(chan struct {
		outcome Outcome
		err     error
	}, 1)
	go func() {
		outcome, err := item.task.Run(ctx, item.handle.interrupter)
		resultCh <- struct {
			outcome Outcome
			err     error
		}{outcome, err}
	}()

	select {
	case result := <-resultCh:
		item.handle.outcome = result.outcome
		item.handle.err = result.err
	case <-ctx.Done():
		// The task exceeded its declared timeout and is force-aborted: the
		// scheduler stops waiting on it regardless of whether it ever
		// cooperates, per the interrupter semantics' force-abort case.
		item.handle.forceAbort = true
		item.handle.outcome = OutcomeCanceled
		item.handle.err = ctx.Err()
	}
	close(item.handle.done)
}

var _ heap.Interface = (*dispatchQueue)(nil)
