package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/queue"
)

// AMQPPublisher publishes booking events to RabbitMQ.  One connection and
// channel are kept open and re-dialled lazily after a failure.  Errors are
// logged and returned so the caller can choose to ignore them.
type AMQPPublisher struct {
	url    string
	logger *logrus.Entry

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher returns a publisher for the broker at url.  No
// connection is made until the first publish.
func NewAMQPPublisher(url string, logger *logrus.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, logger: logger.WithField("component", "rabbitmq")}
}

// SendPaymentCompleted implements booking.NotificationSink.
func (p *AMQPPublisher) SendPaymentCompleted(ctx context.Context, ev queue.PaymentCompletedEvent) error {
	return p.publish(ctx, queue.PaymentCompletedQueue, ev)
}

// SendReservationCompleted implements booking.NotificationSink.
func (p *AMQPPublisher) SendReservationCompleted(ctx context.Context, ev queue.ReservationCompletedEvent) error {
	return p.publish(ctx, queue.ReservationCompletedQueue, ev)
}

// channel returns the open channel, dialling and declaring both queues
// when needed.  Callers hold p.mu.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	for _, name := range []string{queue.PaymentCompletedQueue, queue.ReservationCompletedQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("queue declare %s: %w", name, err)
		}
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("marshal event failed")
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		p.logger.WithError(err).Warn("broker unavailable")
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", routingKey, false, false, pub); err != nil {
		p.logger.WithError(err).WithField("queue", routingKey).Error("publish failed")
		p.closeLocked()
		return err
	}
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}
