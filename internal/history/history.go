// Package history is the interface boundary to the durable message log.
// Writes are fire-and-forget from the router's perspective: a failed append
// never blocks or fails delivery.
package history

import (
	"context"

	"github.com/litchat/relay/internal/message"
)

// Store persists every routed message and serves paged reads for clients
// catching up on a session.
type Store interface {
	Append(ctx context.Context, m message.Message) error
	// QueryBySession returns page (0-based) of size entries for a group
	// session, oldest first.
	QueryBySession(ctx context.Context, sessionID int64, page, size int) ([]message.Message, error)
}
