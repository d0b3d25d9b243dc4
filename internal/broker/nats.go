package broker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS adapts a NATS connection to the Broker interface. One shared subject
// carries all cross-node chat traffic; every node subscribes and filters
// against its local session registry.
type NATS struct {
	conn *nats.Conn
}

// NewNATS wraps an already-connected NATS client.
func NewNATS(conn *nats.Conn) *NATS {
	return &NATS{conn: conn}
}

// Publish sends data to subject.
func (n *NATS) Publish(_ context.Context, topic string, data []byte) error {
	if err := n.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe delivers every message on subject to h. The context passed at
// subscription time is forwarded to the handler.
func (n *NATS) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	sub, err := n.conn.Subscribe(topic, func(msg *nats.Msg) {
		h(ctx, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	return sub, nil
}
