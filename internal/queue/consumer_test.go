package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/odontocloud/invoice-service/internal/auth"
	"github.com/odontocloud/invoice-service/internal/invoice"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeAcknowledger records the ack/nack decision taken for a delivery.
type fakeAcknowledger struct {
	acks     int
	nacks    int
	requeued bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}

type fakeReconciler struct {
	outcome invoice.Outcome
	err     error
	calls   int
	lastID  int
}

func (r *fakeReconciler) Reconcile(ctx context.Context, event invoice.AppointmentEvent) (invoice.Outcome, error) {
	r.calls++
	r.lastID = event.ID
	return r.outcome, r.err
}

func newTestConsumer(rec Reconciler) *Consumer {
	return &Consumer{
		queue:      "appointment-service",
		tag:        "test",
		workers:    1,
		reconciler: rec,
		logger:     testLogger(),
	}
}

func delivery(body []byte) (amqp.Delivery, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	return amqp.Delivery{Acknowledger: ack, Body: body}, ack
}

func eventBody(t *testing.T, id int) []byte {
	t.Helper()
	body, err := json.Marshal(invoice.AppointmentEvent{ID: id, DateAndTime: "10/01/2024 10:00"})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestHandleAcknowledgesUpserted(t *testing.T) {
	rec := &fakeReconciler{outcome: invoice.OutcomeUpserted}
	c := newTestConsumer(rec)

	d, ack := delivery(eventBody(t, 42))
	c.handle(context.Background(), d)

	if rec.calls != 1 || rec.lastID != 42 {
		t.Errorf("reconciler calls = %d lastID = %d, want 1/42", rec.calls, rec.lastID)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Errorf("acks = %d nacks = %d, want 1/0", ack.acks, ack.nacks)
	}
}

func TestHandleAcknowledgesDropped(t *testing.T) {
	rec := &fakeReconciler{outcome: invoice.OutcomeDropped, err: fmt.Errorf("appointment gone")}
	c := newTestConsumer(rec)

	d, ack := delivery(eventBody(t, 99))
	c.handle(context.Background(), d)

	if ack.acks != 1 || ack.nacks != 0 {
		t.Errorf("acks = %d nacks = %d, want 1/0", ack.acks, ack.nacks)
	}
}

func TestHandleRequeuesOnRetry(t *testing.T) {
	rec := &fakeReconciler{outcome: invoice.OutcomeRetry, err: fmt.Errorf("scheduling down")}
	c := newTestConsumer(rec)

	d, ack := delivery(eventBody(t, 42))
	c.handle(context.Background(), d)

	if ack.nacks != 1 || !ack.requeued {
		t.Errorf("nacks = %d requeued = %v, want 1/true", ack.nacks, ack.requeued)
	}
	if ack.acks != 0 {
		t.Errorf("acks = %d, want 0", ack.acks)
	}
}

func TestHandleRequeuesRejectedCredentials(t *testing.T) {
	rec := &fakeReconciler{
		outcome: invoice.OutcomeRetry,
		err:     fmt.Errorf("enrich: %w", auth.ErrCredentialsRejected),
	}
	c := newTestConsumer(rec)

	d, ack := delivery(eventBody(t, 42))
	c.handle(context.Background(), d)

	// The message must not be lost even though redelivery cannot fix it.
	if ack.nacks != 1 || !ack.requeued {
		t.Errorf("nacks = %d requeued = %v, want 1/true", ack.nacks, ack.requeued)
	}
}

func TestHandleDropsPoisonMessage(t *testing.T) {
	rec := &fakeReconciler{outcome: invoice.OutcomeUpserted}
	c := newTestConsumer(rec)

	d, ack := delivery([]byte(`{"id": not json`))
	c.handle(context.Background(), d)

	if rec.calls != 0 {
		t.Errorf("reconciler called %d times for a poison message", rec.calls)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Errorf("acks = %d nacks = %d, want 1/0 (ack to break the redelivery loop)", ack.acks, ack.nacks)
	}
}
