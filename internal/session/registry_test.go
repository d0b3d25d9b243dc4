package session

import (
	"sync"
	"testing"

	"github.com/litchat/relay/internal/protocol"
)

type stubConn struct {
	id string

	mu     sync.Mutex
	frames []protocol.Frame
}

func (c *stubConn) ID() string { return c.id }

func (c *stubConn) Send(f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	c := &stubConn{id: "conn-1"}

	if _, ok := r.Get(42); ok {
		t.Fatal("empty registry reported a connection")
	}

	r.Add(42, c)
	got, ok := r.Get(42)
	if !ok || got.ID() != "conn-1" {
		t.Fatalf("Get(42) = %v, %v; want conn-1", got, ok)
	}
	if uid, ok := r.UserIDOf(c); !ok || uid != 42 {
		t.Fatalf("UserIDOf = %d, %v; want 42", uid, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	uid, ok := r.Remove(c)
	if !ok || uid != 42 {
		t.Fatalf("Remove = %d, %v; want 42, true", uid, ok)
	}
	if _, ok := r.Get(42); ok {
		t.Fatal("connection still present after Remove")
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d after Remove, want 0", r.Len())
	}
}

func TestRegistryLastWriterWins(t *testing.T) {
	r := NewRegistry()
	first := &stubConn{id: "conn-a"}
	second := &stubConn{id: "conn-b"}

	r.Add(42, first)
	r.Add(42, second)

	got, ok := r.Get(42)
	if !ok || got.ID() != "conn-b" {
		t.Fatalf("Get(42) after replacement = %v, want conn-b", got)
	}

	// The displaced connection's disconnect must not unbind the new one.
	if _, ok := r.Remove(first); ok {
		t.Fatal("Remove of a displaced connection should be a no-op")
	}
	got, ok = r.Get(42)
	if !ok || got.ID() != "conn-b" {
		t.Fatal("displaced connection's Remove unbound the replacement")
	}

	if uid, ok := r.Remove(second); !ok || uid != 42 {
		t.Fatalf("Remove(second) = %d, %v; want 42, true", uid, ok)
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

func TestRegistryRemoveUnknownConn(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Remove(&stubConn{id: "ghost"}); ok {
		t.Fatal("Remove of an unregistered connection returned true")
	}
}
