package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrNoRoutingKey = errors.New("outbox message has no routing key")

// Message is a domain event waiting to be appended to the outbox.
type Message struct {
	AggregateType string
	AggregateID   *int64
	RoutingKey    string
	Payload       any
}

// Event encodes m as a pending outbox row.
func (m Message) Event() (*Event, error) {
	if m.RoutingKey == "" {
		return nil, ErrNoRoutingKey
	}
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", m.RoutingKey, err)
	}
	return &Event{
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		RoutingKey:    m.RoutingKey,
		Payload:       raw,
		Status:        StatusPending,
	}, nil
}

// Append writes m inside tx; the dispatcher sees it only once tx commits.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, m Message) error {
	event, err := m.Event()
	if err != nil {
		return err
	}
	return r.InsertEvent(ctx, tx, event)
}
