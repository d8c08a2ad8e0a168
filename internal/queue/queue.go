package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Handler processes one task payload. Returning an error makes the queue
// retry the task according to the task type's Policy.
type Handler func(ctx context.Context, payload any) error

// Policy is the retry policy applied to one task type.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Task is a single schedulable unit of work. Payloads must be plain values:
// by the time a task executes, rows referenced at enqueue time may have
// changed or been deleted.
type Task struct {
	ID      uuid.UUID
	Type    string
	Payload any
}

// FailedTask records a task that exhausted its retry budget. It is retained
// for operator inspection; the queue never silently drops work.
type FailedTask struct {
	Task     Task
	Attempts int
	Err      error
}

type registration struct {
	handler Handler
	policy  Policy
}

// Queue is an in-process, at-least-once task queue. Tasks of different types
// run concurrently on a fixed worker pool; each type carries its own retry
// policy. All retries for one task happen on the same worker, so a task is
// never processed by two workers at once.
type Queue struct {
	mu       sync.RWMutex
	handlers map[string]registration
	tasks    chan Task
	failed   []FailedTask
	workers  int
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	started  bool
	stopped  bool
}

func New(workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		handlers: make(map[string]registration),
		tasks:    make(chan Task, 1024),
		workers:  workers,
	}
}

// Register binds a handler and retry policy to a task type. Registration must
// happen before Start.
func (q *Queue) Register(taskType string, policy Policy, h Handler) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = registration{handler: h, policy: policy}
}

// Enqueue schedules a task for asynchronous execution. It never blocks:
// when the buffer is full the task is rejected with an error.
func (q *Queue) Enqueue(taskType string, payload any) error {
	q.mu.RLock()
	_, ok := q.handlers[taskType]
	stopped := q.stopped
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for task type %q", taskType)
	}
	if stopped {
		return fmt.Errorf("queue is stopped")
	}

	task := Task{ID: uuid.New(), Type: taskType, Payload: payload}
	select {
	case q.tasks <- task:
	default:
		return fmt.Errorf("queue is full")
	}
	log.Debugf("enqueued task %s (%s)", task.ID, task.Type)
	return nil
}

// Start launches the worker pool.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-q.tasks:
					q.run(ctx, task)
				}
			}
		}()
	}
}

// Stop cancels in-flight backoff waits and waits for workers to exit. Tasks
// still sitting in the channel are abandoned.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// FailedTasks returns a copy of all permanently failed tasks so far.
func (q *Queue) FailedTasks() []FailedTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]FailedTask, len(q.failed))
	copy(out, q.failed)
	return out
}

func (q *Queue) run(ctx context.Context, task Task) {
	q.mu.RLock()
	reg := q.handlers[task.Type]
	q.mu.RUnlock()

	attempts := 0
	op := func() error {
		attempts++
		err := q.invoke(ctx, reg.handler, task)
		if err != nil {
			log.Errorf("task %s (%s) attempt %d/%d failed: %v",
				task.ID, task.Type, attempts, reg.policy.MaxAttempts, err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(reg.policy.Backoff), uint64(reg.policy.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		log.Errorf("task %s (%s) permanently failed after %d attempts: %v", task.ID, task.Type, attempts, err)
		q.mu.Lock()
		q.failed = append(q.failed, FailedTask{Task: task, Attempts: attempts, Err: err})
		q.mu.Unlock()
	}
}

// invoke runs the handler with panic recovery, so a panicking handler counts
// as a failed attempt instead of killing the worker.
func (q *Queue) invoke(ctx context.Context, h Handler, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic for task %s (%s): %v", task.ID, task.Type, r)
			log.Error(err)
		}
	}()
	return h(ctx, task.Payload)
}
