package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
)

// Consumer reads both booking queues and forwards every event to a
// Handler.  It reconnects with exponential backoff whenever the broker
// connection drops.
type Consumer struct {
    url     string
    handler Handler
    logger  *logrus.Entry
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url string, handler Handler, logger *logrus.Logger) *Consumer {
    return &Consumer{url: url, handler: handler, logger: logger.WithField("component", "booking-consumer")}
}

// Run consumes until ctx is cancelled.  Processing errors never stop the
// loop: the offending message is rejected without requeue.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return nil
        }
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.logger.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        c.logger.WithError(err).Warn("consume loop ended; reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.logger.WithError(err).Warn("set QoS failed")
    }

    payments, err := c.subscribe(ch, PaymentCompletedQueue)
    if err != nil {
        return err
    }
    reservations, err := c.subscribe(ch, ReservationCompletedQueue)
    if err != nil {
        return err
    }

    for {
        var (
            d  amqp.Delivery
            ok bool
        )
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok = <-payments:
        case d, ok = <-reservations:
        }
        if !ok {
            return errors.New("deliveries channel closed")
        }
        if err := c.handleMessage(ctx, d.RoutingKey, d.Body); err != nil {
            c.logger.WithError(err).WithField("queue", d.RoutingKey).Error("handle message failed")
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
}

func (c *Consumer) subscribe(ch *amqp.Channel, name string) (<-chan amqp.Delivery, error) {
    if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
        return nil, fmt.Errorf("queue declare %s: %w", name, err)
    }
    msgs, err := ch.Consume(name, "", false, false, false, false, nil)
    if err != nil {
        return nil, fmt.Errorf("queue consume %s: %w", name, err)
    }
    return msgs, nil
}

// handleMessage decodes body according to the queue it came from.
func (c *Consumer) handleMessage(ctx context.Context, queue string, body []byte) error {
    switch queue {
    case PaymentCompletedQueue:
        var ev PaymentCompletedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        return c.handler.SendPaymentCompleted(ctx, ev)
    case ReservationCompletedQueue:
        var ev ReservationCompletedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        return c.handler.SendReservationCompleted(ctx, ev)
    default:
        return fmt.Errorf("unexpected queue %q", queue)
    }
}
