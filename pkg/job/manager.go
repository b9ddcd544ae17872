package job

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sd-io/sdcore/pkg/identifier"
	"github.com/sd-io/sdcore/pkg/logging"
	"github.com/sd-io/sdcore/pkg/state"
)

// Store persists job reports so they survive a daemon restart; resumable
// jobs are re-queued in "paused" state from whatever the store returns for
// them, per the failure model's crash-recovery rule.
type Store interface {
	Save(report *Report) error
	Load(id string) (*Report, error)
	// LoadResumable returns every non-terminal resumable report, used at
	// startup to re-queue work interrupted by a crash.
	LoadResumable() ([]*Report, error)
	// List returns every persisted report, newest first, for "job list".
	List() ([]*Report, error)
	// Delete removes a persisted report, for "job clear".
	Delete(id string) error
}

// ResumeFactory reconstructs a Handler for a resumable job being resumed
// after a pause, given the checkpoint bytes from its last report.
type ResumeFactory func(checkpoint []byte) Handler

// DBProvider resolves a library's database handle for Context.LibraryDB.
type DBProvider func(library LibraryAccessor) any

// runningJob tracks the bookkeeping for one in-flight job, kept separately
// from Report so interrupt flags never get persisted.
type runningJob struct {
	submission Submission
	interrupt  *interruptState
	cancelFn   context.CancelFunc
}

// queueItem is one pending submission in the priority dispatch queue.
type queueItem struct {
	reportID   string
	submission Submission
	priority   bool
	sequence   int64
}

// priorityQueue is a container/heap.Interface ordering priority jobs ahead
// of non-priority ones, and otherwise FIFO by submission sequence.
type priorityQueue []*queueItem

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority
	}
	return q[i].sequence < q[j].sequence
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)   { *q = append(*q, x.(*queueItem)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Manager owns the dispatch queue, the active worker map, and persistence
// of job reports, per spec.md §4.4's Job Manager contract.
type Manager struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    priorityQueue
	sequence int64

	running map[string]*runningJob
	store   Store
	tracker *state.Tracker
	logger  *logging.Logger

	dbProvider DBProvider

	resumeFactories map[string]ResumeFactory

	workerCount int
	shutdown    bool
	wg          sync.WaitGroup
}

// NewManager constructs a Manager with workerCount bounded runner
// goroutines, persisting reports to store.
func NewManager(workerCount int, store Store, logger *logging.Logger) *Manager {
	if workerCount < 1 {
		workerCount = 1
	}
	m := &Manager{
		running:         make(map[string]*runningJob),
		store:           store,
		tracker:         state.NewTracker(),
		logger:          logger,
		workerCount:     workerCount,
		resumeFactories: make(map[string]ResumeFactory),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// SetDBProvider configures how a running job's Context resolves its
// library's database handle.
func (m *Manager) SetDBProvider(p DBProvider) { m.dbProvider = p }

// RegisterResumeFactory wires a job type to the factory that reconstructs
// its Handler from a checkpoint, so that Resume can re-queue a paused job
// of that type without the caller having to rebuild the handler itself.
func (m *Manager) RegisterResumeFactory(jobType string, factory ResumeFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeFactories[jobType] = factory
}

// Start launches the runner pool and re-queues any resumable jobs the
// store reports as interrupted by a prior crash.
func (m *Manager) Start() error {
	resumable, err := m.store.LoadResumable()
	if err != nil {
		return fmt.Errorf("job: load resumable reports: %w", err)
	}
	for _, report := range resumable {
		report.Status = StatusPaused
		if err := m.store.Save(report); err != nil {
			return fmt.Errorf("job: persist resumed report %s: %w", report.ID, err)
		}
	}

	for i := 0; i < m.workerCount; i++ {
		m.wg.Add(1)
		go m.runLoop()
	}
	return nil
}

// Stop signals every runner goroutine to exit after its current job
// completes, and waits for them to do so.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.shutdown = true
	m.cond.Broadcast()
	m.mu.Unlock()
	m.wg.Wait()
	m.tracker.Terminate()
}

// Submit enqueues a new job, writing an initial queued report and
// returning its assigned ID.
func (m *Manager) Submit(sub Submission) (string, error) {
	id, err := identifier.New(identifier.PrefixJob)
	if err != nil {
		return "", fmt.Errorf("job: generate id: %w", err)
	}

	now := timeNow()
	report := &Report{
		ID:        id,
		Type:      sub.Type,
		Priority:  sub.Priority,
		Resumable: sub.Resumable,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(report); err != nil {
		return "", fmt.Errorf("job: persist queued report: %w", err)
	}

	m.mu.Lock()
	m.sequence++
	heap.Push(&m.queue, &queueItem{reportID: id, submission: sub, priority: sub.Priority, sequence: m.sequence})
	m.cond.Signal()
	m.mu.Unlock()

	m.tracker.NotifyOfChange()
	return id, nil
}

// Pause requests cooperative pause of a running job. The job transitions
// to paused once the handler observes ErrPauseRequested and checkpoints.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rj, ok := m.running[id]
	if !ok {
		return fmt.Errorf("job: %s is not running", id)
	}
	rj.interrupt.pauseRequested.Store(true)
	return nil
}

// Cancel requests cooperative cancellation of a running job, or removes it
// from the pending queue if it hasn't started yet.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rj, ok := m.running[id]; ok {
		rj.interrupt.cancelRequested.Store(true)
		return nil
	}

	for i, item := range m.queue {
		if item.reportID == id {
			heap.Remove(&m.queue, i)
			// updateReport only touches the Store and the tracker, neither
			// of which is guarded by m.mu, so it's safe to call while
			// still holding the lock that guards m.queue/m.running.
			m.updateReport(id, func(r *Report) { r.Status = StatusCanceled })
			return nil
		}
	}
	return fmt.Errorf("job: %s not found", id)
}

// ForceAbort aborts a running job regardless of cooperation, marking it
// failed immediately.
func (m *Manager) ForceAbort(id string) error {
	m.mu.Lock()
	rj, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job: %s is not running", id)
	}
	rj.cancelFn()
	return nil
}

// Report returns a snapshot of a job's current report.
func (m *Manager) Report(id string) (*Report, error) {
	return m.store.Load(id)
}

// List returns every persisted report, for "job list".
func (m *Manager) List() ([]*Report, error) {
	return m.store.List()
}

// Clear removes every persisted report for which match returns true,
// refusing to remove reports that are still queued or running (a job
// only clears once it reaches a terminal or paused state), returning the
// number of reports removed.
func (m *Manager) Clear(match func(*Report) bool) (int, error) {
	reports, err := m.store.List()
	if err != nil {
		return 0, fmt.Errorf("job: listing reports to clear: %w", err)
	}

	removed := 0
	for _, report := range reports {
		if report.Status == StatusRunning || report.Status == StatusQueued {
			continue
		}
		if !match(report) {
			continue
		}
		if err := m.store.Delete(report.ID); err != nil {
			return removed, fmt.Errorf("job: deleting report %s: %w", report.ID, err)
		}
		removed++
	}
	return removed, nil
}

// Resume re-queues a paused, resumable job using the Handler its job type's
// registered ResumeFactory reconstructs from the job's last checkpoint.
func (m *Manager) Resume(id string, library LibraryAccessor) error {
	report, err := m.store.Load(id)
	if err != nil {
		return fmt.Errorf("job: loading report %s: %w", id, err)
	}
	if report.Status != StatusPaused {
		return fmt.Errorf("job: %s is not paused", id)
	}
	if !report.Resumable {
		return fmt.Errorf("job: %s is not resumable", id)
	}

	m.mu.Lock()
	factory, ok := m.resumeFactories[report.Type]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job: no resumable handler registered for job type %q", report.Type)
	}
	handler := factory(report.Checkpoint)

	sub := Submission{
		Type:      report.Type,
		Resumable: true,
		Handler:   handler,
		Library:   library,
		Resume:    report.Checkpoint,
	}

	m.mu.Lock()
	m.sequence++
	heap.Push(&m.queue, &queueItem{reportID: id, submission: sub, priority: sub.Priority, sequence: m.sequence})
	m.cond.Signal()
	m.mu.Unlock()

	m.updateReport(id, func(r *Report) { r.Status = StatusQueued })
	m.tracker.NotifyOfChange()
	return nil
}

// WaitForChange blocks until the dispatch queue or some running job's
// report changes, for long-polling clients.
func (m *Manager) WaitForChange(ctx context.Context, previousIndex uint64) (uint64, error) {
	return m.tracker.WaitForChange(ctx, previousIndex)
}

func timeNow() time.Time { return time.Now().UTC() }
