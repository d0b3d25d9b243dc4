// Package broker abstracts the shared broadcast channel every relay node
// publishes chat messages to and consumes them from. Delivery is
// at-least-once with no cross-publisher ordering guarantee.
package broker

import "context"

// Handler consumes one published message.
type Handler func(ctx context.Context, data []byte)

// Subscription detaches a consumer from a topic.
type Subscription interface {
	Unsubscribe() error
}

// Broker is the publish/subscribe surface the router depends on.
type Broker interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error)
}
