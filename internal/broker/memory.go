package broker

import (
	"context"
	"sync"
)

// Memory is an in-process Broker. Tests run two router instances against one
// Memory broker to exercise cross-node fan-out without external services.
type Memory struct {
	mu   sync.Mutex
	subs map[string][]*memorySub
	next int
}

type memorySub struct {
	broker  *Memory
	topic   string
	id      int
	handler Handler
}

// NewMemory builds an empty broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*memorySub)}
}

// Publish invokes every subscriber of topic with data. Handlers run on the
// caller's goroutine, so delivery is complete when Publish returns.
func (m *Memory) Publish(ctx context.Context, topic string, data []byte) error {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.subs[topic]))
	for _, s := range m.subs[topic] {
		handlers = append(handlers, s.handler)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(ctx, data)
	}
	return nil
}

// Subscribe attaches h to topic until the subscription is cancelled.
func (m *Memory) Subscribe(_ context.Context, topic string, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	sub := &memorySub{broker: m, topic: topic, id: m.next, handler: h}
	m.subs[topic] = append(m.subs[topic], sub)
	return sub, nil
}

func (s *memorySub) Unsubscribe() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	subs := s.broker.subs[s.topic]
	for i, cur := range subs {
		if cur.id == s.id {
			s.broker.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
