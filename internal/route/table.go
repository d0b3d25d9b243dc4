// Package route maintains the cluster-wide record of which node holds each
// user's live connection, backed by the shared KV store.
package route

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/litchat/relay/internal/kv"
)

const (
	keyPrefix = "chat:route:user:"

	// DefaultTTL bounds how long a stale route outlives its node. Heartbeat
	// traffic does not refresh it; re-auth does.
	DefaultTTL = 24 * time.Hour
)

// Table is the route table client.
type Table struct {
	store kv.Store
	ttl   time.Duration
}

// NewTable builds a table over the shared store. A zero ttl selects
// DefaultTTL.
func NewTable(store kv.Store, ttl time.Duration) *Table {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Table{store: store, ttl: ttl}
}

// Register records that userID is reachable at addr.
func (t *Table) Register(ctx context.Context, userID int64, addr string) error {
	if err := t.store.Set(ctx, routeKey(userID), addr, t.ttl); err != nil {
		return fmt.Errorf("register route for user %d: %w", userID, err)
	}
	return nil
}

// Lookup returns the node address holding userID's connection. A missing
// route means the user is fully offline (or the entry expired).
func (t *Table) Lookup(ctx context.Context, userID int64) (string, bool, error) {
	addr, ok, err := t.store.Get(ctx, routeKey(userID))
	if err != nil {
		return "", false, fmt.Errorf("lookup route for user %d: %w", userID, err)
	}
	return addr, ok, nil
}

// Remove deletes userID's route on disconnect.
func (t *Table) Remove(ctx context.Context, userID int64) error {
	if err := t.store.Del(ctx, routeKey(userID)); err != nil {
		return fmt.Errorf("remove route for user %d: %w", userID, err)
	}
	return nil
}

func routeKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}
