package app

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/agentgate/agentgate/domain/task"
	"github.com/agentgate/agentgate/ports"
	"github.com/rs/zerolog"
)

// TaskManagerConfig configures the task manager.
type TaskManagerConfig struct {
	MaxWorkers      int
	TaskTTL         time.Duration
	CleanupInterval time.Duration
}

// storedTask is the manager-owned task record. Mutated only under the
// manager's mutex; terminal statuses are never left.
type storedTask struct {
	id              string
	apiKeyID        string
	request         task.Request
	status          task.Status
	priority        int
	createdAt       time.Time
	startedAt       *time.Time
	completedAt     *time.Time
	expiresAt       *time.Time
	err             string
	result          map[string]any
	cancelRequested bool
}

// queueEntry orders the priority queue: higher priority first, FIFO
// within equal priority by monotonic sequence.
type queueEntry struct {
	priority int
	seq      uint64
	taskID   string
}

type taskQueue []queueEntry

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *taskQueue) Push(x any)   { *q = append(*q, x.(queueEntry)) }
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// TaskMetrics receives task manager instrumentation events.
type TaskMetrics interface {
	TaskSubmitted(agent string)
	TaskFinished(status string)
	QueueDepth(n int)
}

type noopTaskMetrics struct{}

func (noopTaskMetrics) TaskSubmitted(string) {}
func (noopTaskMetrics) TaskFinished(string)  {}
func (noopTaskMetrics) QueueDepth(int)       {}

// TaskManager runs submitted tasks on a fixed worker pool with priority
// ordering, owner-scoped visibility, cancellation, and TTL expiry of
// finished tasks.
//
// One mutex guards the task table, the priority queue, and the
// active-executions map. The mutex is never held across an executor
// invocation: workers release it before calling the executor and
// re-acquire it to record the outcome, so a slow provider call cannot
// serialize queue operations.
type TaskManager struct {
	cfg      TaskManagerConfig
	executor ports.Executor
	clock    ports.Clock
	idGen    ports.IDGenerator
	metrics  TaskMetrics
	logger   zerolog.Logger

	mu      sync.Mutex
	tasks   map[string]*storedTask
	queue   taskQueue
	active  map[string]context.CancelFunc
	seq     uint64
	running bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wake    chan struct{}
	wg      sync.WaitGroup
}

// NewTaskManager creates a task manager. The executor is invoked once
// per task on a worker goroutine.
func NewTaskManager(cfg TaskManagerConfig, executor ports.Executor, clock ports.Clock, idGen ports.IDGenerator, metrics TaskMetrics, logger zerolog.Logger) *TaskManager {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2
	}
	if cfg.TaskTTL <= 0 {
		cfg.TaskTTL = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}
	if metrics == nil {
		metrics = noopTaskMetrics{}
	}
	return &TaskManager{
		cfg:      cfg,
		executor: executor,
		clock:    clock,
		idGen:    idGen,
		metrics:  metrics,
		logger:   logger.With().Str("component", "tasks").Logger(),
		tasks:    make(map[string]*storedTask),
		active:   make(map[string]context.CancelFunc),
		wake:     make(chan struct{}, 1),
	}
}

// Start spins up the worker pool and the cleanup loop. Idempotent.
func (m *TaskManager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	for i := 0; i < m.cfg.MaxWorkers; i++ {
		m.wg.Add(1)
		go m.workerLoop(i)
	}
	m.wg.Add(1)
	go m.cleanupLoop()

	m.logger.Info().Int("workers", m.cfg.MaxWorkers).Msg("task manager started")
}

// Shutdown cancels in-flight executions, stops all loops, and waits for
// them to exit. Idempotent.
func (m *TaskManager) Shutdown() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	for _, cancel := range m.active {
		cancel()
	}
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info().Msg("task manager stopped")
}

// Submit records a pending task and enqueues it. Returns the status
// snapshot immediately; execution happens on a worker.
func (m *TaskManager) Submit(req task.Request, apiKeyID string) (task.Snapshot, error) {
	if err := req.Validate(); err != nil {
		return task.Snapshot{}, err
	}

	id := m.idGen.New()
	now := m.clock.Now().UTC()

	t := &storedTask{
		id:        id,
		apiKeyID:  apiKeyID,
		request:   req,
		status:    task.StatusPending,
		priority:  req.Priority,
		createdAt: now,
	}

	m.mu.Lock()
	m.tasks[id] = t
	m.seq++
	heap.Push(&m.queue, queueEntry{priority: req.Priority, seq: m.seq, taskID: id})
	depth := m.queue.Len()
	snap := t.snapshot()
	m.mu.Unlock()

	m.metrics.TaskSubmitted(string(req.Agent))
	m.metrics.QueueDepth(depth)
	m.signalWake()

	m.logger.Info().
		Str("task_id", id).
		Str("agent", string(req.Agent)).
		Int("priority", req.Priority).
		Str("api_key_id", apiKeyID).
		Msg("task submitted")

	return snap, nil
}

// Get returns a task's status snapshot for its owner. A task owned by a
// different key is reported as not found.
func (m *TaskManager) Get(taskID, apiKeyID string) (task.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.ownedLocked(taskID, apiKeyID)
	if !ok {
		return task.Snapshot{}, task.ErrNotFound
	}
	return t.snapshot(), nil
}

// Result returns the result of a completed task. Tasks in any other
// state yield ErrNotReady; failure detail is exposed via Get instead.
func (m *TaskManager) Result(taskID, apiKeyID string) (task.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.ownedLocked(taskID, apiKeyID)
	if !ok {
		return task.Result{}, task.ErrNotFound
	}
	if t.status != task.StatusCompleted {
		return task.Result{}, task.ErrNotReady
	}
	return task.Result{Snapshot: t.snapshot(), Result: t.result}, nil
}

// Cancel requests cancellation of a pending or processing task. The
// stored status flips to cancelled immediately; an in-flight execution
// is signalled and unwinds on its own time.
func (m *TaskManager) Cancel(taskID, apiKeyID string) (task.Snapshot, error) {
	m.mu.Lock()

	t, ok := m.ownedLocked(taskID, apiKeyID)
	if !ok {
		m.mu.Unlock()
		return task.Snapshot{}, task.ErrNotFound
	}
	if t.status.Terminal() {
		status := t.status
		m.mu.Unlock()
		return task.Snapshot{}, &task.ConflictError{TaskID: taskID, Status: status}
	}

	t.cancelRequested = true
	m.markCancelledLocked(t)
	cancel := m.active[taskID]
	snap := t.snapshot()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.logger.Info().Str("task_id", taskID).Str("api_key_id", apiKeyID).Msg("task cancelled")
	return snap, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Status task.Status
	Agent  task.AgentType
	Limit  int
	Offset int
}

// List returns the owner's tasks newest-first with optional status and
// agent filters, plus the total match count before pagination.
func (m *TaskManager) List(apiKeyID string, f ListFilter) ([]task.Snapshot, int) {
	if f.Limit <= 0 {
		f.Limit = 20
	}

	m.mu.Lock()
	matched := make([]*storedTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.apiKeyID != apiKeyID {
			continue
		}
		if f.Status != "" && t.status != f.Status {
			continue
		}
		if f.Agent != "" && t.request.Agent != f.Agent {
			continue
		}
		matched = append(matched, t)
	}
	snaps := make([]task.Snapshot, len(matched))
	for i, t := range matched {
		snaps[i] = t.snapshot()
	}
	m.mu.Unlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})

	total := len(snaps)
	if f.Offset >= total {
		return []task.Snapshot{}, total
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return snaps[f.Offset:end], total
}

// workerLoop pulls tasks off the shared queue until shutdown. The
// dequeue wait is bounded so shutdown is always observed promptly.
func (m *TaskManager) workerLoop(workerID int) {
	defer m.wg.Done()

	for {
		entry, ok := m.tryDequeue()
		if !ok {
			select {
			case <-m.baseCtx.Done():
				return
			case <-m.wake:
			case <-time.After(time.Second):
			}
			continue
		}
		m.processTask(entry.taskID, workerID)
	}
}

func (m *TaskManager) tryDequeue() (queueEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queue.Len() == 0 {
		return queueEntry{}, false
	}
	e := heap.Pop(&m.queue).(queueEntry)
	m.metrics.QueueDepth(m.queue.Len())
	return e, true
}

func (m *TaskManager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// processTask runs one dequeued task through its lifecycle. Executor
// errors are contained here; they never escape to the worker loop.
func (m *TaskManager) processTask(taskID string, workerID int) {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok || t.status != task.StatusPending {
		// Evicted or already cancelled while queued; drop the entry.
		m.mu.Unlock()
		return
	}
	if t.cancelRequested {
		m.markCancelledLocked(t)
		m.mu.Unlock()
		return
	}

	started := m.clock.Now().UTC()
	t.status = task.StatusProcessing
	t.startedAt = &started

	execCtx, cancel := context.WithCancel(m.baseCtx)
	m.active[taskID] = cancel
	req := t.request
	apiKeyID := t.apiKeyID
	m.mu.Unlock()

	m.logger.Info().Str("task_id", taskID).Int("worker", workerID).Msg("task processing started")

	// Lock released: the executor may block on provider I/O.
	result, err := m.executor(execCtx, req, apiKeyID)

	m.mu.Lock()
	delete(m.active, taskID)
	cancel()

	current, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || execCtx.Err() != nil):
		if !current.status.Terminal() {
			m.markCancelledLocked(current)
		}
		m.mu.Unlock()
		m.metrics.TaskFinished(string(task.StatusCancelled))

	case err != nil:
		if !current.status.Terminal() {
			m.markFailedLocked(current, err.Error())
		}
		m.mu.Unlock()
		m.metrics.TaskFinished(string(task.StatusFailed))
		m.logger.Error().
			Str("task_id", taskID).
			Int("worker", workerID).
			Err(err).
			Msg("task processing failed")

	default:
		if current.status == task.StatusCancelled || current.cancelRequested {
			m.markCancelledLocked(current)
			m.mu.Unlock()
			m.metrics.TaskFinished(string(task.StatusCancelled))
			return
		}
		m.markCompletedLocked(current, result)
		m.mu.Unlock()
		m.metrics.TaskFinished(string(task.StatusCompleted))
		m.logger.Info().Str("task_id", taskID).Int("worker", workerID).Msg("task processing completed")
	}
}

// cleanupLoop deletes terminal tasks whose TTL has passed. This is the
// only path that removes tasks; it never changes the status of a live
// task.
func (m *TaskManager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
		}

		now := m.clock.Now().UTC()
		m.mu.Lock()
		removed := 0
		for id, t := range m.tasks {
			if t.status.Terminal() && t.expiresAt != nil && !t.expiresAt.After(now) {
				delete(m.tasks, id)
				removed++
			}
		}
		m.mu.Unlock()

		if removed > 0 {
			m.logger.Info().Int("count", removed).Msg("expired tasks cleaned")
		}
	}
}

// SweepExpired removes expired terminal tasks immediately. Exposed for
// deterministic testing of the expiry behavior.
func (m *TaskManager) SweepExpired() int {
	now := m.clock.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.tasks {
		if t.status.Terminal() && t.expiresAt != nil && !t.expiresAt.After(now) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

func (m *TaskManager) ownedLocked(taskID, apiKeyID string) (*storedTask, bool) {
	t, ok := m.tasks[taskID]
	if !ok || t.apiKeyID != apiKeyID {
		return nil, false
	}
	return t, true
}

func (m *TaskManager) markCompletedLocked(t *storedTask, result map[string]any) {
	now := m.clock.Now().UTC()
	expires := now.Add(m.cfg.TaskTTL)
	t.status = task.StatusCompleted
	t.result = result
	t.err = ""
	t.completedAt = &now
	t.expiresAt = &expires
}

func (m *TaskManager) markFailedLocked(t *storedTask, errMsg string) {
	now := m.clock.Now().UTC()
	expires := now.Add(m.cfg.TaskTTL)
	t.status = task.StatusFailed
	t.result = nil
	t.err = errMsg
	t.completedAt = &now
	t.expiresAt = &expires
}

func (m *TaskManager) markCancelledLocked(t *storedTask) {
	now := m.clock.Now().UTC()
	expires := now.Add(m.cfg.TaskTTL)
	t.status = task.StatusCancelled
	t.result = nil
	t.err = ""
	t.completedAt = &now
	t.expiresAt = &expires
}

func (t *storedTask) snapshot() task.Snapshot {
	return task.Snapshot{
		TaskID:      t.id,
		Agent:       t.request.Agent,
		Status:      t.status,
		Priority:    t.priority,
		CreatedAt:   t.createdAt,
		StartedAt:   t.startedAt,
		CompletedAt: t.completedAt,
		ExpiresAt:   t.expiresAt,
		Error:       t.err,
	}
}
