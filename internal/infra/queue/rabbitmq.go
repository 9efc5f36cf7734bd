package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

// RabbitPushQueue публикует push-сообщения в очередь RabbitMQ для внешнего шлюза доставки.
type RabbitPushQueue struct {
	conn  *amqp.Connection
	queue string

	mu sync.Mutex
	ch *amqp.Channel
}

var _ domain.PushSender = (*RabbitPushQueue)(nil)

// NewRabbitPushQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitPushQueue(amqpURL, queue string) (*RabbitPushQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitPushQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Send публикует сообщение. Доставка на устройство остаётся за потребителем очереди.
func (q *RabbitPushQueue) Send(ctx context.Context, msg domain.PushMessage) error {
	payload, err := encodePush(msg)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    start.UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("%w: publish: %v", domain.ErrPushDeliveryFailed, err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (q *RabbitPushQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
	}
	return q.conn.Close()
}

type pushEnvelope struct {
	Token    string    `json:"token"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

func encodePush(msg domain.PushMessage) ([]byte, error) {
	if msg.Token == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrPushDeliveryFailed)
	}
	payload, err := json.Marshal(pushEnvelope{Token: msg.Token, Title: msg.Title, Body: msg.Body, QueuedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal push: %w", err)
	}
	return payload, nil
}
