package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

// EventProducer publishes JSON events to durable topic exchanges.
type EventProducer struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NoopProducer stands in when the broker is not configured or unreachable.
type NoopProducer struct{}

func (NoopProducer) Publish(ctx context.Context, exchange, routingKey string, _ any) error {
	logging.FromContext(ctx).Debug("event publish skipped, broker unavailable", "exchange", exchange, "routing_key", routingKey)
	return nil
}

func (NoopProducer) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be amqp:// or amqps://")
	}
	return clean, nil
}

func NewEventProducer(amqpURL string) (*EventProducer, error) {
	clean, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("NewEventProducer: %w", err)
	}

	conn, err := amqp091.DialConfig(clean, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("NewEventProducer: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewEventProducer: channel: %w", err)
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("Publish: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, exchange, routingKey, payload)
	if err == nil {
		return nil
	}

	// A closed channel is reopened once before giving up.
	logging.FromContext(ctx).Warn("publish failed, reopening channel", "exchange", exchange, "routing_key", routingKey, "error", err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("Publish: reopen channel: %w", chErr)
	}
	p.channel = ch
	if err := p.publish(ctx, exchange, routingKey, payload); err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *EventProducer) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
