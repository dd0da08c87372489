package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBufferSize  = 256
	defaultTaskTimeout = 30 * time.Second
)

// Task is one unit of deferred work. Tasks run after the HTTP response has
// been written; their outcome is logged and otherwise invisible to the
// original caller.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue executes tasks on a background worker. Enqueue never blocks the
// request path: when the buffer is full the task is dropped and counted.
type Queue struct {
	tasks   chan Task
	timeout time.Duration
	logger  *zap.Logger
	done    chan struct{}

	mu      sync.Mutex
	dropped int
}

// Config describes queue sizing and task handling.
type Config struct {
	BufferSize  int
	TaskTimeout time.Duration
	Logger      *zap.Logger
}

// NewQueue constructs a Queue.
func NewQueue(cfg Config) *Queue {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	timeout := cfg.TaskTimeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		tasks:   make(chan Task, bufferSize),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Enqueue hands a task to the worker. It reports whether the task was
// accepted; a full buffer drops the task rather than stalling the caller.
func (q *Queue) Enqueue(task Task) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		q.mu.Lock()
		q.dropped++
		dropped := q.dropped
		q.mu.Unlock()
		q.logger.Warn("task buffer full, dropping task",
			zap.String("task", task.Name),
			zap.Int("dropped_total", dropped))
		return false
	}
}

// Start launches the worker goroutine. On context cancellation the worker
// runs any still-queued tasks before signalling completion.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case task := <-q.tasks:
				q.run(task)
			case <-ctx.Done():
				q.Drain()
				close(q.done)
				return
			}
		}
	}()
}

// Wait blocks until the worker has finished its final drain.
func (q *Queue) Wait() {
	<-q.done
}

// Drain synchronously runs every task queued so far. It exists so tests and
// shutdown can await background work deterministically instead of sleeping.
func (q *Queue) Drain() {
	for {
		select {
		case task := <-q.tasks:
			q.run(task)
		default:
			return
		}
	}
}

// Depth returns the number of queued tasks (for health reporting).
func (q *Queue) Depth() int {
	return len(q.tasks)
}

// Dropped returns how many tasks were rejected by a full buffer.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := task.Run(ctx); err != nil {
		// The webhook sender was already acknowledged; a log line is the only
		// record of this failure.
		q.logger.Error("background task failed",
			zap.String("task", task.Name),
			zap.Error(err))
		return
	}
	q.logger.Debug("background task completed", zap.String("task", task.Name))
}
