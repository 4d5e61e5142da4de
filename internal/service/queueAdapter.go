package service

import (
	"context"

	"github.com/ds124wfegd/studio-booking/pkg/queue"
	"github.com/sirupsen/logrus"
)

// QueueAdapter адаптирует queue.Queue к TaskPublisher интерфейсу
type QueueAdapter struct {
	queue queue.Queue
}

// NewQueueAdapter создает новый адаптер для очереди
func NewQueueAdapter(q queue.Queue) *QueueAdapter {
	return &QueueAdapter{queue: q}
}

// Publish передает задачу в очередь. Без очереди задача отбрасывается
func (a *QueueAdapter) Publish(ctx context.Context, task *queue.Task) error {
	if a.queue == nil {
		logrus.WithField("task_type", task.Type).Warn("Queue is not initialized, task dropped")
		return nil
	}
	return a.queue.Publish(ctx, task)
}
