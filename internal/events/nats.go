package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher implements Publisher using NATS
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher creates a new NATS-backed publisher
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL, nats.Name("wizard-replay"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", natsURL, err)
	}

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "events").Logger(),
	}, nil
}

// Close drains pending messages and closes the NATS connection
func (n *NATSPublisher) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}

// PublishBufferEvent publishes to the base subject and to a per-kind
// subject (e.g. replay.events.cleared) for consumers that only care about one.
func (n *NATSPublisher) PublishBufferEvent(ctx context.Context, event BufferEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", n.subject).Msg("Failed to publish buffer event")
		return err
	}

	routingKey := Subject(n.subject, event.Kind)
	if err := n.conn.Publish(routingKey, data); err != nil {
		n.logger.Error().Err(err).Str("routing_key", routingKey).Msg("Failed to publish to routing key")
	}

	n.logger.Debug().
		Str("kind", string(event.Kind)).
		Str("generation", event.Generation).
		Str("subject", n.subject).
		Msg("Published buffer event")

	return nil
}

// Subject returns the per-kind routing subject under base
func Subject(base string, kind Kind) string {
	return base + "." + string(kind)
}
