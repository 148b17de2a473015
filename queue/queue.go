// Package queue runs per-file hashing and resolution tasks under a bounded
// concurrency limit with retry and timeout handling. Consumers observe the
// queue through go-events sinks: one event per task outcome plus a drain
// event whenever the queue empties. Task identity is stable across retries
// and completion-order races, so callers can key results by TaskID
// regardless of scheduling.
package queue

import (
	"container/list"
	"context"
	"runtime"
	"sync"
	"time"

	events "github.com/docker/go-events"
	"github.com/sirupsen/logrus"

	propertydag "github.com/elephant-xyz/property-dag"
)

// fallbackConcurrency is used when no override is given and the platform
// heuristic is unusable.
const fallbackConcurrency = 4

// Task is one unit of work. The context carries no deadline: an overrunning
// task is abandoned and retried, never cooperatively cancelled.
type Task func(ctx context.Context) error

// TaskID identifies a pushed task across retries and events.
type TaskID uint64

// EventType distinguishes queue lifecycle events.
type EventType string

const (
	EventTaskComplete EventType = "task-complete"
	EventTaskError    EventType = "task-error"
	EventDrain        EventType = "drain"
)

// TaskEvent is written to the configured sink for every final task outcome
// and every drain.
type TaskEvent struct {
	Type     EventType
	Task     TaskID
	Attempts int
	Err      error
}

// Config bounds the queue.
type Config struct {
	// Concurrency overrides the worker count. Values above the platform
	// cap are clamped; zero selects the platform default.
	Concurrency int

	// DefaultTimeout applies to tasks pushed without an explicit timeout.
	// Zero disables the deadline.
	DefaultTimeout time.Duration
}

// PushOptions control one task's retry and timeout behavior.
type PushOptions struct {
	// MaxRetries is the number of re-attempts after the first failure; a
	// task with MaxRetries 2 may run three times.
	MaxRetries int

	// Timeout converts an overrunning attempt into a retryable failure.
	Timeout time.Duration
}

type item struct {
	id         TaskID
	task       Task
	maxRetries int
	attempts   int
	timeout    time.Duration
}

// Queue is a bounded-concurrency task runner.
type Queue struct {
	sink events.Sink

	mu      sync.Mutex
	cond    *sync.Cond
	idle    *sync.Cond
	pending *list.List
	active  int
	paused  bool
	closed  bool
	nextID  TaskID
	results map[TaskID]error

	workers        int
	defaultTimeout time.Duration
}

// DefaultConcurrency derives the worker count from the platform: one worker
// per logical CPU.
func DefaultConcurrency() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return fallbackConcurrency
}

// boundConcurrency clamps a user override to the platform-derived cap.
func boundConcurrency(override int) int {
	max := 2 * DefaultConcurrency()
	switch {
	case override <= 0:
		return DefaultConcurrency()
	case override > max:
		return max
	default:
		return override
	}
}

// New starts the worker pool. The sink receives TaskEvents; a nil sink
// discards them.
func New(config Config, sink events.Sink) *Queue {
	q := &Queue{
		sink:    sink,
		pending: list.New(),
		results: make(map[TaskID]error),
		workers: boundConcurrency(config.Concurrency),
	}
	q.cond = sync.NewCond(&q.mu)
	q.idle = sync.NewCond(&q.mu)

	if config.DefaultTimeout < 0 {
		config.DefaultTimeout = 0
	}
	q.defaultTimeout = config.DefaultTimeout

	for i := 0; i < q.workers; i++ {
		go q.run()
	}
	return q
}

// Concurrency reports the effective worker count.
func (q *Queue) Concurrency() int {
	return q.workers
}

// Push schedules a task and returns its identity. Push never blocks on task
// execution; the pending list is unbounded, only execution is bounded.
func (q *Queue) Push(task Task, opts PushOptions) TaskID {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	it := &item{
		id:         q.nextID,
		task:       task,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
	}
	if it.timeout == 0 {
		it.timeout = q.defaultTimeout
	}
	q.pending.PushBack(it)
	q.cond.Signal()
	return it.id
}

// Pause stops workers from picking up further tasks. Running attempts
// finish normally.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume restarts a paused queue.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	q.cond.Broadcast()
}

// Wait blocks until the queue has no pending or active tasks.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending.Len() > 0 || q.active > 0 {
		q.idle.Wait()
	}
}

// Close drains the queue and stops the workers. The queue cannot be reused.
func (q *Queue) Close() {
	q.Wait()
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Err reports the final error recorded for a task, nil while the task is
// still pending or after it succeeded.
func (q *Queue) Err(id TaskID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.results[id]
}

// run is one worker's main loop.
func (q *Queue) run() {
	for {
		it := q.next()
		if it == nil {
			return
		}

		err := q.attempt(it)
		q.finish(it, err)
	}
}

// next blocks until a task is available or the queue closes. It accounts
// the taken task as active under the same critical section so the bound is
// never exceeded between dequeue and execution.
func (q *Queue) next() *item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending.Len() < 1 || q.paused {
		if q.closed {
			return nil
		}
		q.cond.Wait()
	}

	front := q.pending.Front()
	q.pending.Remove(front)
	q.active++
	return front.Value.(*item)
}

// attempt runs one execution of the task, converting an overrun into a
// retryable failure. The overrunning goroutine keeps running; its eventual
// result is discarded.
func (q *Queue) attempt(it *item) error {
	it.attempts++

	done := make(chan error, 1)
	go func() {
		done <- it.task(context.Background())
	}()

	if it.timeout <= 0 {
		return <-done
	}

	timer := time.NewTimer(it.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return propertydag.ErrTaskTimeout
	}
}

// finish settles one attempt: requeue on a retryable failure, otherwise
// record the outcome, emit its event and signal drain when the queue
// empties.
func (q *Queue) finish(it *item, err error) {
	var event *TaskEvent

	q.mu.Lock()
	q.active--
	switch {
	case err == nil:
		q.results[it.id] = nil
		event = &TaskEvent{Type: EventTaskComplete, Task: it.id, Attempts: it.attempts}
	case it.attempts <= it.maxRetries:
		logrus.WithField("task", it.id).WithError(err).Debugf("queue: attempt %d failed, retrying", it.attempts)
		q.pending.PushBack(it)
		q.cond.Signal()
	default:
		final := propertydag.ConcurrencyError{TaskID: uint64(it.id), Attempts: it.attempts, Err: err}
		q.results[it.id] = final
		event = &TaskEvent{Type: EventTaskError, Task: it.id, Attempts: it.attempts, Err: final}
	}
	drained := q.pending.Len() == 0 && q.active == 0
	if drained {
		q.idle.Broadcast()
	}
	q.mu.Unlock()

	if event != nil {
		q.write(*event)
	}
	if drained && event != nil {
		q.write(TaskEvent{Type: EventDrain})
	}
}

func (q *Queue) write(event TaskEvent) {
	if q.sink == nil {
		return
	}
	if err := q.sink.Write(event); err != nil {
		logrus.WithError(err).Warn("queue: dropping event, sink write failed")
	}
}
