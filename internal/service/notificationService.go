package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/pkg/kafka"
	"github.com/ds124wfegd/studio-booking/pkg/queue"
	"github.com/ds124wfegd/studio-booking/pkg/webhook"
	"github.com/sirupsen/logrus"
)

const (
	// задачи рассылки работают только с локальным хранилищем и потоком событий
	dispatchMaxRetries = 3

	dataNotification = "notification"
	dataWebhookID    = "webhook_id"
	dataEventType    = "event_type"
)

// TaskPublisher интерфейс для публикации задач в очередь
type TaskPublisher interface {
	Publish(ctx context.Context, task *queue.Task) error
}

type notificationService struct {
	store      database.Store
	publisher  TaskPublisher
	producer   kafka.Producer
	sender     *webhook.Sender
	maxRetries int
}

// NewNotificationService: maxRetries ограничивает повторы доставки вебхука (попыток maxRetries + 1)
func NewNotificationService(store database.Store, publisher TaskPublisher, producer kafka.Producer, sender *webhook.Sender, maxRetries int) NotificationService {
	if producer == nil {
		producer = kafka.NewMockProducer()
	}
	return &notificationService{
		store:      store,
		publisher:  publisher,
		producer:   producer,
		sender:     sender,
		maxRetries: maxRetries,
	}
}

// RegisterHandlers регистрирует типы задач рассылки в th
func (s *notificationService) RegisterHandlers(th *queue.TaskHandler) {
	th.Register(queue.TaskTypeDispatchNotification, s.handleDispatch)
	th.Register(queue.TaskTypeWebhookDelivery, s.handleDelivery)
}

func (s *notificationService) RegisterWebhook(ctx context.Context, req *RegisterWebhookRequest) (*entity.Webhook, error) {
	w := &entity.Webhook{
		EventType: req.EventType,
		TargetURL: req.TargetURL,
		Secret:    req.Secret,
		Active:    true,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Webhooks().Create(ctx, w); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"webhook_id": w.ID,
		"event_type": w.EventType,
	}).Info("Webhook registered")
	return w, nil
}

func (s *notificationService) ListDeliveries(ctx context.Context, webhookID string) ([]*entity.WebhookDeliveryLog, error) {
	if _, err := s.store.Webhooks().GetByID(ctx, webhookID); err != nil {
		return nil, err
	}
	return s.store.Webhooks().ListDeliveries(ctx, webhookID)
}

// Notify ставит уведомление в очередь на рассылку. Вызывается после коммита,
// поэтому ошибки только логируются
func (s *notificationService) Notify(ctx context.Context, n entity.Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		logrus.WithField("event_type", n.EventType).Errorf("Failed to encode notification: %v", err)
		return
	}

	task := &queue.Task{
		Type:       queue.TaskTypeDispatchNotification,
		Data:       map[string]interface{}{dataNotification: string(payload)},
		MaxRetries: dispatchMaxRetries,
	}
	// контекст запроса к этому моменту может быть уже отменен
	if err := s.publisher.Publish(context.WithoutCancel(ctx), task); err != nil {
		logrus.WithFields(logrus.Fields{
			"event_type":     n.EventType,
			"reservation_id": n.ReservationID,
		}).Errorf("Failed to queue notification: %v", err)
	}
}

// Dispatch публикует n в поток событий и ставит по одной доставке на каждый подписанный вебхук
func (s *notificationService) Dispatch(ctx context.Context, n entity.Notification) error {
	if err := s.producer.SendMessage(ctx, streamKey(n), n); err != nil {
		logrus.WithField("event_type", n.EventType).Errorf("Failed to publish event to stream: %v", err)
	}

	hooks, err := s.store.Webhooks().ListActiveByEventType(ctx, n.EventType)
	if err != nil {
		return fmt.Errorf("failed to list webhooks for %s: %w", n.EventType, err)
	}
	if len(hooks) == 0 {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return queue.Permanent(fmt.Errorf("failed to encode notification: %w", err))
	}

	for _, w := range hooks {
		task := &queue.Task{
			Type: queue.TaskTypeWebhookDelivery,
			Data: map[string]interface{}{
				dataWebhookID:    w.ID,
				dataEventType:    string(n.EventType),
				dataNotification: string(payload),
			},
			MaxRetries: s.maxRetries,
		}
		if err := s.publisher.Publish(ctx, task); err != nil {
			return fmt.Errorf("failed to queue delivery to webhook %s: %w", w.ID, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"event_type": n.EventType,
		"webhooks":   len(hooks),
	}).Debug("Notification dispatched")
	return nil
}

// Deliver выполняет одну попытку доставки и пишет ее в журнал доставок
func (s *notificationService) Deliver(ctx context.Context, webhookID string, n entity.Notification, attempt int) error {
	w, err := s.store.Webhooks().GetByID(ctx, webhookID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return queue.Permanent(err)
		}
		return err
	}
	if !w.Active {
		logrus.WithField("webhook_id", webhookID).Debug("Webhook inactive, delivery skipped")
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return queue.Permanent(fmt.Errorf("failed to encode notification: %w", err))
	}

	result, sendErr := s.sender.Send(ctx, w.TargetURL, w.Secret, body)

	entry := &entity.WebhookDeliveryLog{
		WebhookID:    w.ID,
		EventType:    n.EventType,
		Status:       entity.DeliveryStatusSuccess,
		Payload:      string(body),
		Attempt:      attempt,
		ResponseCode: result.StatusCode,
	}
	if sendErr != nil {
		entry.Status = entity.DeliveryStatusFailure
		entry.ErrorMessage = sendErr.Error()
	}
	if err := s.store.Webhooks().LogDelivery(ctx, entry); err != nil {
		logrus.WithField("webhook_id", w.ID).Errorf("Failed to record delivery attempt: %v", err)
	}

	fields := logrus.Fields{
		"webhook_id":    w.ID,
		"event_type":    n.EventType,
		"attempt":       attempt,
		"response_code": result.StatusCode,
		"duration":      result.Duration.String(),
	}
	if sendErr == nil {
		logrus.WithFields(fields).Info("Webhook delivered")
		return nil
	}

	if attempt > s.maxRetries {
		logrus.WithFields(fields).Errorf("Webhook delivery exhausted: %v", sendErr)
		return queue.Permanent(fmt.Errorf("%w: %v", entity.ErrDeliveryExhausted, sendErr))
	}
	logrus.WithFields(fields).Warnf("Webhook delivery failed: %v", sendErr)
	return fmt.Errorf("%w: %v", entity.ErrDeliveryFailure, sendErr)
}

func (s *notificationService) handleDispatch(ctx context.Context, task *queue.Task) error {
	n, err := decodeNotification(task)
	if err != nil {
		return err
	}
	return s.Dispatch(ctx, n)
}

func (s *notificationService) handleDelivery(ctx context.Context, task *queue.Task) error {
	webhookID := task.GetString(dataWebhookID)
	if webhookID == "" {
		return queue.Permanent(fmt.Errorf("delivery task %s has no webhook id", task.ID))
	}
	n, err := decodeNotification(task)
	if err != nil {
		return err
	}
	return s.Deliver(ctx, webhookID, n, task.Attempts)
}

func decodeNotification(task *queue.Task) (entity.Notification, error) {
	var n entity.Notification
	raw := task.GetString(dataNotification)
	if raw == "" {
		return n, queue.Permanent(fmt.Errorf("task %s has no notification", task.ID))
	}
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return n, queue.Permanent(fmt.Errorf("failed to decode notification: %w", err))
	}
	return n, nil
}

// streamKey держит события одного размещения в одной партиции
func streamKey(n entity.Notification) string {
	switch {
	case n.AllocationID != "":
		return n.AllocationID
	case n.BundleID != "":
		return n.BundleID
	}
	return string(n.EventType)
}
