package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type RabbitQueueConfig struct {
	URL       string
	QueueName string
	DLQName   string
	Prefetch  int
}

// RabbitQueue implements Queue on RabbitMQ. Delays use a per-message queue with
// TTL whose dead-letter route points back at the work queue.
type RabbitQueue struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	pubMu        sync.Mutex
	config       RabbitQueueConfig
	retryManager *RetryManager
	wg           sync.WaitGroup
}

func NewRabbitQueue(config RabbitQueueConfig, retryManager *RetryManager) (*RabbitQueue, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, name := range []string{config.QueueName, config.DLQName} {
		_, err := channel.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			amqp.Table{"x-queue-mode": "lazy"},
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"queue": config.QueueName,
		"dlq":   config.DLQName,
	}).Info("RabbitQueue initialized")

	return &RabbitQueue{
		conn:         conn,
		channel:      channel,
		config:       config,
		retryManager: retryManager,
	}, nil
}

func (r *RabbitQueue) Publish(ctx context.Context, task *Task) error {
	if err := prepareTask(task, r.retryManager.MaxRetries()); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return r.publish(ctx, task, time.Until(task.ExecuteAt))
}

func (r *RabbitQueue) publish(ctx context.Context, task *Task, delay time.Duration) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	routingKey := r.config.QueueName
	if delay > 0 {
		routingKey, err = r.declareDelayQueue(delay)
		if err != nil {
			return err
		}
	}

	err = r.channel.PublishWithContext(
		ctx,
		"",         // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    task.ID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	return nil
}

// declareDelayQueue creates a throwaway queue whose expired messages are dead-lettered to the work queue
func (r *RabbitQueue) declareDelayQueue(delay time.Duration) (string, error) {
	name := fmt.Sprintf("%s_delayed_%d", r.config.QueueName, time.Now().UnixNano())
	_, err := r.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl":             delay.Milliseconds(),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": r.config.QueueName,
			"x-expires":                 delay.Milliseconds() + 60000,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare delayed queue: %w", err)
	}
	return name, nil
}

func (r *RabbitQueue) Subscribe(ctx context.Context, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	prefetch := r.config.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := r.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := r.channel.Consume(
		r.config.QueueName, // queue
		"",                 // consumer
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume messages: %w", err)
	}

	r.wg.Add(1)
	go r.handleMessages(ctx, msgs, handler)

	logrus.Info("RabbitQueue subscriber started")
	return nil
}

func (r *RabbitQueue) handleMessages(ctx context.Context, msgs <-chan amqp.Delivery, handler HandlerFunc) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.handleDelivery(ctx, msg, handler)
		}
	}
}

// handleDelivery always acks: a retry is a fresh delayed publish, a dead task goes to the DLQ.
func (r *RabbitQueue) handleDelivery(ctx context.Context, msg amqp.Delivery, handler HandlerFunc) {
	var task Task
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		logrus.Errorf("Failed to unmarshal task, dropping to DLQ: %v", err)
		r.deadLetter(ctx, msg.Body)
		msg.Ack(false)
		return
	}

	result, delay, runErr := runAttempt(ctx, &task, handler, r.retryManager)
	switch result {
	case outcomeRetry:
		task.ExecuteAt = time.Now().Add(delay)
		if err := r.publish(ctx, &task, delay); err != nil {
			logrus.Errorf("Failed to reschedule task %s: %v", task.ID, err)
			msg.Nack(false, true)
			return
		}
	case outcomeDead:
		failed, _ := json.Marshal(newFailedTask(&task, runErr))
		r.deadLetter(ctx, failed)
		logrus.WithFields(logrus.Fields{
			"task_id":  task.ID,
			"attempts": task.Attempts,
		}).Warnf("Task moved to DLQ: %v", runErr)
	}
	msg.Ack(false)
}

func (r *RabbitQueue) deadLetter(ctx context.Context, body []byte) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	err := r.channel.PublishWithContext(ctx, "", r.config.DLQName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		logrus.Errorf("Failed to publish to DLQ: %v", err)
	}
}

func (r *RabbitQueue) Close() error {
	var errs []error

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.wg.Wait()

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing RabbitMQ: %v", errs)
	}

	logrus.Info("RabbitQueue closed")
	return nil
}
