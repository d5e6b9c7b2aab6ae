package queue

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/odontocloud/invoice-service/internal/invoice"
)

// Declare sets up the direct exchange, queue and binding the scheduling
// service publishes to. Both ends declare so startup order does not matter.
func Declare(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", name, err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", name, err)
	}
	if err := ch.QueueBind(name, name, name, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", name, err)
	}
	return nil
}

// Publisher sends appointment events onto the queue. The service itself only
// consumes; this is used by the event generator and integration tooling.
type Publisher struct {
	channel *amqp.Channel
	name    string
}

func NewPublisher(conn *amqp.Connection, name string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := Declare(ch, name); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{channel: ch, name: name}, nil
}

func (p *Publisher) Publish(event invoice.AppointmentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal appointment event: %w", err)
	}
	return p.channel.Publish(p.name, p.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}
