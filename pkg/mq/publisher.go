package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"habit-updater/pkg/trace"

	"github.com/rabbitmq/amqp091-go"
)

var ErrNotConnected = errors.New("mq publisher is not connected")

// Publisher publishes JSON events to the events exchange. Safe for
// concurrent use; amqp channels are not, so publishes are serialized.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := Dial(url, ConnectionName)
	if err != nil {
		return nil, err
	}

	ch, err := openChannel(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
	}, nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected checks if the publisher connection is still alive
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.channel == nil {
		return false
	}
	return !p.conn.IsClosed() && !p.channel.IsClosed()
}

// PublishWithContext publishes payload with the given routing key. The trace
// id in ctx, if any, is attached as a header.
func (p *Publisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	msg, err := NewMessage(ctx, payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil || p.channel.IsClosed() {
		return ErrNotConnected
	}
	return p.channel.PublishWithContext(ctx, ExchangeName, routingKey, false, false, msg)
}

// Publish publishes an event to the exchange with the given routing key.
func (p *Publisher) Publish(routingKey string, payload any) error {
	return p.PublishWithContext(context.Background(), routingKey, payload)
}

// NewMessage builds the persistent JSON message sent for payload.
func NewMessage(ctx context.Context, payload any) (amqp091.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}
	if traceID := trace.RunID(ctx); traceID != "" {
		msg.Headers = amqp091.Table{TraceIDHeader: traceID}
		msg.CorrelationId = traceID
	}
	return msg, nil
}
