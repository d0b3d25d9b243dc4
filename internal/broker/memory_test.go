package broker

import (
	"context"
	"testing"
)

func TestMemoryPublishReachesAllSubscribers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var a, b [][]byte
	if _, err := m.Subscribe(ctx, "chat.messages", func(_ context.Context, data []byte) {
		a = append(a, data)
	}); err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	if _, err := m.Subscribe(ctx, "chat.messages", func(_ context.Context, data []byte) {
		b = append(b, data)
	}); err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}

	if err := m.Publish(ctx, "chat.messages", []byte("one")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", len(a), len(b))
	}
	if string(a[0]) != "one" || string(b[0]) != "one" {
		t.Fatalf("payloads = %q/%q, want one/one", a[0], b[0])
	}
}

func TestMemoryTopicsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got int
	if _, err := m.Subscribe(ctx, "other.topic", func(context.Context, []byte) { got++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := m.Publish(ctx, "chat.messages", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got != 0 {
		t.Fatalf("subscriber on another topic received %d messages", got)
	}
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got int
	sub, err := m.Subscribe(ctx, "chat.messages", func(context.Context, []byte) { got++ })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := m.Publish(ctx, "chat.messages", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := m.Publish(ctx, "chat.messages", nil); err != nil {
		t.Fatalf("Publish after Unsubscribe: %v", err)
	}
	if got != 1 {
		t.Fatalf("deliveries = %d, want 1", got)
	}
}
