package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HandlerFunc processes one attempt of a task. task.Attempts is already
// incremented for the running attempt.
type HandlerFunc func(ctx context.Context, task *Task) error

// Queue is implemented by every queue driver
type Queue interface {
	Publish(ctx context.Context, task *Task) error
	// Subscribe starts consumers in the background and returns immediately
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

// runAttempt executes one attempt and decides what the driver does next:
// acknowledge, reschedule after delay, or park in the DLQ.
func runAttempt(ctx context.Context, task *Task, handler HandlerFunc, rm *RetryManager) (outcome, time.Duration, error) {
	task.Attempts++

	err := handler(ctx, task)
	if err == nil {
		return outcomeDone, 0, nil
	}

	retry, delay := rm.ShouldRetry(task, err)
	if !retry {
		return outcomeDead, 0, err
	}

	logrus.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"attempt":     task.Attempts,
		"max_retries": task.MaxRetries,
		"retry_in":    delay.String(),
	}).Warnf("Task failed, scheduling retry: %v", err)

	return outcomeRetry, delay, err
}

// prepareTask fills defaults before a task is enqueued.
func prepareTask(task *Task, defaultRetries int) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if task.ID == "" {
		task.ID = generateTaskID()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = defaultRetries
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.ExecuteAt.IsZero() {
		task.ExecuteAt = time.Now()
	}
	return task.Validate()
}

// generateTaskID generates a unique task ID
func generateTaskID() string {
	return "task_" + uuid.NewString()
}
