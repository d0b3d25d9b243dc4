// Package session tracks which users hold live connections on this node.
// It is a best-effort local presence cache: cross-node presence is the route
// table's job, and nothing here is durable.
package session

import (
	"sync"

	"github.com/litchat/relay/internal/protocol"
)

// Conn is the writable handle the registry hands out for a live connection.
type Conn interface {
	// ID uniquely identifies the underlying connection.
	ID() string
	// Send enqueues a frame for delivery without blocking.
	Send(f protocol.Frame) error
}

// Registry is the bidirectional userID <-> connection map. One instance per
// server; every component that needs presence receives it by reference.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]Conn
	byConn map[string]int64
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int64]Conn),
		byConn: make(map[string]int64),
	}
}

// Add binds userID to c, replacing any prior mapping for that user
// (last writer wins; a second device displaces the first). The displaced
// connection's reverse entry is dropped so its eventual disconnect cannot
// unregister the new connection.
func (r *Registry) Add(userID int64, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[userID]; ok && old.ID() != c.ID() {
		delete(r.byConn, old.ID())
	}
	r.byUser[userID] = c
	r.byConn[c.ID()] = userID
}

// Remove drops both directions of c's mapping. It returns the user the
// connection was bound to, and false if c was not registered (already
// replaced, or never authenticated).
func (r *Registry) Remove(c Conn) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[c.ID()]
	if !ok {
		return 0, false
	}
	delete(r.byConn, c.ID())
	if cur, bound := r.byUser[userID]; bound && cur.ID() == c.ID() {
		delete(r.byUser, userID)
	}
	return userID, true
}

// Get returns the live connection for userID, if any.
func (r *Registry) Get(userID int64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byUser[userID]
	return c, ok
}

// UserIDOf returns the user bound to c, if any.
func (r *Registry) UserIDOf(c Conn) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byConn[c.ID()]
	return userID, ok
}

// Len reports how many users currently have a live connection.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
