package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// TaskHandler обрабатывает задачи из очереди, выбирая обработчик по типу задачи
type TaskHandler struct {
	mu       sync.RWMutex
	handlers map[TaskType]HandlerFunc
}

// NewTaskHandler создает новый обработчик задач
func NewTaskHandler() *TaskHandler {
	return &TaskHandler{handlers: make(map[TaskType]HandlerFunc)}
}

// Register назначает fn задачам типа t, заменяя прежний обработчик
func (h *TaskHandler) Register(t TaskType, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[t] = fn
}

// HandleTask обрабатывает задачу. Задачи неизвестного типа не повторяются
func (h *TaskHandler) HandleTask(ctx context.Context, task *Task) error {
	h.mu.RLock()
	fn, ok := h.handlers[task.Type]
	h.mu.RUnlock()

	if !ok {
		return Permanent(fmt.Errorf("unknown task type: %s", task.Type))
	}

	logrus.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"attempt":     task.Attempts,
		"max_retries": task.MaxRetries,
	}).Debug("Handling task")

	return fn(ctx, task)
}
