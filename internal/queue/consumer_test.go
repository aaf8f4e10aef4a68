package queue

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type recorder struct {
	payments     []PaymentCompletedEvent
	reservations []ReservationCompletedEvent
	err          error
}

func (r *recorder) SendPaymentCompleted(_ context.Context, ev PaymentCompletedEvent) error {
	r.payments = append(r.payments, ev)
	return r.err
}

func (r *recorder) SendReservationCompleted(_ context.Context, ev ReservationCompletedEvent) error {
	r.reservations = append(r.reservations, ev)
	return r.err
}

func newTestConsumer(h Handler) *Consumer {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewConsumer("amqp://unused", h, l)
}

func TestHandleMessageDispatchesByQueue(t *testing.T) {
	rec := &recorder{}
	c := newTestConsumer(rec)
	ctx := context.Background()

	if err := c.handleMessage(ctx, PaymentCompletedQueue, []byte(`{"payment_id":3,"user_id":"u1","amount":150000}`)); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if err := c.handleMessage(ctx, ReservationCompletedQueue, []byte(`{"reservation_id":9,"concert_date":"2026-12-24","seat_number":4}`)); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if len(rec.payments) != 1 || rec.payments[0].PaymentID != 3 || rec.payments[0].Amount != 150000 {
		t.Fatalf("payments = %+v", rec.payments)
	}
	if len(rec.reservations) != 1 || rec.reservations[0].SeatNumber != 4 {
		t.Fatalf("reservations = %+v", rec.reservations)
	}
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	c := newTestConsumer(&recorder{})
	ctx := context.Background()
	if err := c.handleMessage(ctx, PaymentCompletedQueue, []byte("not json")); err == nil {
		t.Fatal("malformed body accepted")
	}
	if err := c.handleMessage(ctx, "other.queue", []byte("{}")); err == nil {
		t.Fatal("unknown queue accepted")
	}
}

func TestHandleMessagePropagatesHandlerError(t *testing.T) {
	boom := errors.New("sink down")
	c := newTestConsumer(&recorder{err: boom})
	if err := c.handleMessage(context.Background(), ReservationCompletedQueue, []byte(`{}`)); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunReturnsWhenCancelled(t *testing.T) {
	c := newTestConsumer(&recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}
