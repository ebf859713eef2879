package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"

	"wombat/internal/model"
)

// splitTarget separates "scheme://host/name" into the broker URL and the trailing name.
func splitTarget(target string) (broker, name string, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}
	name = strings.Trim(u.Path, "/")
	if name == "" {
		return "", "", fmt.Errorf("target %q has no queue or subject", target)
	}
	u.Path = ""
	u.RawPath = ""
	return u.String(), name, nil
}

// AMQPSender publishes alerts as persistent JSON messages to a durable RabbitMQ queue.
type AMQPSender struct {
	url   string
	queue string
}

func NewAMQPSender(target string) (*AMQPSender, error) {
	broker, queue, err := splitTarget(target)
	if err != nil {
		return nil, err
	}
	return &AMQPSender{url: broker, queue: queue}, nil
}

func (s *AMQPSender) Channel() string { return "amqp" }

func (s *AMQPSender) Send(ctx context.Context, t model.TriggeredAlert) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp declare queue %s: %w", s.queue, err)
	}

	err = ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// NATSSender publishes alerts as JSON to a NATS subject.
type NATSSender struct {
	url     string
	subject string
}

func NewNATSSender(target string) (*NATSSender, error) {
	broker, subject, err := splitTarget(target)
	if err != nil {
		return nil, err
	}
	return &NATSSender{url: broker, subject: subject}, nil
}

func (s *NATSSender) Channel() string { return "nats" }

func (s *NATSSender) Send(ctx context.Context, t model.TriggeredAlert) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	nc, err := nats.Connect(s.url, nats.Name("wombat-miles"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	if err := nc.Publish(s.subject, body); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	if err := nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}
