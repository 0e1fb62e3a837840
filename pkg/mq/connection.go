package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName is the durable topic exchange every updater event goes to.
	ExchangeName = "events"
	exchangeKind = "topic"

	// TraceIDHeader carries the run id across the broker.
	TraceIDHeader = "x-trace-id"

	// ConnectionName identifies the updater in the broker's connection list.
	ConnectionName = "habit-updater"

	heartbeat = 10 * time.Second
)

// Dial connects to the broker, advertising name as the client connection name.
func Dial(url, name string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	if name != "" {
		props.SetClientConnectionName(name)
	}

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// openChannel opens a channel on conn with the events exchange declared.
// The channel is closed again if the declaration fails.
func openChannel(conn *amqp091.Connection) (*amqp091.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	const durable, autoDelete, internal, noWait = true, false, false, false
	if err := ch.ExchangeDeclare(ExchangeName, exchangeKind, durable, autoDelete, internal, noWait, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", ExchangeName, err)
	}
	return ch, nil
}
