package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MemoryQueue is an in-process Queue. Delayed tasks and retries are
// scheduled with timers; nothing survives a restart.
type MemoryQueue struct {
	tasks        chan *Task
	retryManager *RetryManager
	dlqHandler   DLQHandler
	workers      int

	mu      sync.Mutex
	closed  bool
	timers  map[*time.Timer]struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	pending sync.WaitGroup
}

func NewMemoryQueue(retryManager *RetryManager, dlqHandler DLQHandler, workers int) *MemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	if dlqHandler == nil {
		dlqHandler = NewMemoryDLQ()
	}
	return &MemoryQueue{
		tasks:        make(chan *Task, 1024),
		retryManager: retryManager,
		dlqHandler:   dlqHandler,
		workers:      workers,
		timers:       make(map[*time.Timer]struct{}),
		stop:         make(chan struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, task *Task) error {
	if err := prepareTask(task, q.retryManager.MaxRetries()); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return q.schedule(task.clone(), time.Until(task.ExecuteAt))
}

func (q *MemoryQueue) schedule(task *Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	q.pending.Add(1)
	if delay <= 0 {
		go q.enqueue(task)
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		q.enqueue(task)
	})
	q.timers[timer] = struct{}{}
	return nil
}

func (q *MemoryQueue) enqueue(task *Task) {
	select {
	case q.tasks <- task:
	case <-q.stop:
		q.pending.Done()
	}
}

func (q *MemoryQueue) Subscribe(ctx context.Context, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.consume(ctx, handler)
	}

	logrus.WithField("workers", q.workers).Info("MemoryQueue subscriber started")
	return nil
}

func (q *MemoryQueue) consume(ctx context.Context, handler HandlerFunc) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case task := <-q.tasks:
			q.process(ctx, task, handler)
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, task *Task, handler HandlerFunc) {
	defer q.pending.Done()

	result, delay, err := runAttempt(ctx, task, handler, q.retryManager)
	switch result {
	case outcomeRetry:
		if schedErr := q.schedule(task.clone(), delay); schedErr != nil {
			q.dlqHandler.HandleFailedTask(ctx, task, err)
		}
	case outcomeDead:
		q.dlqHandler.HandleFailedTask(ctx, task, err)
	}
}

// Drain waits until every published task, including retries, is finished
// or the context expires.
func (q *MemoryQueue) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		if timer.Stop() {
			q.pending.Done()
		}
	}
	q.timers = nil
	close(q.stop)
	q.mu.Unlock()

	q.wg.Wait()
	logrus.Info("MemoryQueue closed")
	return nil
}
