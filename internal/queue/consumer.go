package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/odontocloud/invoice-service/internal/auth"
	"github.com/odontocloud/invoice-service/internal/invoice"
)

// Reconciler is the slice of invoice.Service the consumer drives.
type Reconciler interface {
	Reconcile(ctx context.Context, event invoice.AppointmentEvent) (invoice.Outcome, error)
}

// Consumer subscribes to the appointment event queue and feeds deliveries to
// a pool of workers. Per-message failures are classified into ack vs requeue;
// nothing that happens to a single message stops the subscription.
type Consumer struct {
	channel    *amqp.Channel
	queue      string
	tag        string
	workers    int
	reconciler Reconciler
	logger     *logrus.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, workers int, reconciler Reconciler, logger *logrus.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := Declare(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	// Cap in-flight deliveries at the worker pool size so requeued messages
	// are redistributed instead of piling up on this consumer.
	if err := ch.Qos(workers, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		channel:    ch,
		queue:      queue,
		tag:        "invoice-service-" + queue,
		workers:    workers,
		reconciler: reconciler,
		logger:     logger,
	}, nil
}

// Run registers the subscription and blocks until ctx is cancelled or the
// delivery channel closes (broker shutdown). All workers drain before return.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer on %q: %w", c.queue, err)
	}

	c.logger.WithFields(logrus.Fields{
		"queue":   c.queue,
		"workers": c.workers,
	}).Info("consuming appointment events")

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				c.handle(ctx, d)
			}
		}()
	}

	<-ctx.Done()
	// Cancelling the consumer closes the delivery channel and lets the
	// workers finish their in-flight messages.
	if err := c.channel.Cancel(c.tag, false); err != nil {
		c.logger.WithField("error", err.Error()).Warn("cancel consumer")
	}
	wg.Wait()

	return c.channel.Close()
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var event invoice.AppointmentEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		// Poison message: acknowledge so the broker does not loop it forever.
		c.logger.WithFields(logrus.Fields{
			"error": err.Error(),
			"body":  truncate(d.Body, 256),
		}).Warn("dropping undecodable message")
		c.ack(d)
		return
	}

	outcome, err := c.reconciler.Reconcile(ctx, event)

	fields := logrus.Fields{
		"appointment_id": event.ID,
		"outcome":        outcome.String(),
		"redelivered":    d.Redelivered,
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	switch outcome {
	case invoice.OutcomeUpserted:
		c.logger.WithFields(fields).Info("event processed")
		c.ack(d)
	case invoice.OutcomeDropped:
		c.logger.WithFields(fields).Warn("event dropped")
		c.ack(d)
	case invoice.OutcomeRetry:
		if errors.Is(err, auth.ErrCredentialsRejected) {
			// Requeueing cannot fix rejected credentials, but losing the
			// message would be worse. Flag it for the operators.
			fields["alert"] = true
			c.logger.WithFields(fields).Error("credentials rejected, event requeued for manual inspection")
		} else {
			c.logger.WithFields(fields).Error("transient failure, event requeued")
		}
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.WithField("error", nackErr.Error()).Error("nack failed")
		}
	}
}

func (c *Consumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.logger.WithField("error", err.Error()).Error("ack failed")
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
