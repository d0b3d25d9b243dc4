// Package offline implements the bounded per-user queue of undelivered
// single-chat messages, stored in the shared KV store and replayed when the
// user reconnects. It is not a history log; the history store keeps the full
// record.
package offline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/litchat/relay/internal/kv"
	"github.com/litchat/relay/internal/message"
	"go.uber.org/zap"
)

const (
	keyPrefix = "chat:offline:user:"

	// DefaultLimit caps the queue at the most recent entries, oldest
	// evicted first.
	DefaultLimit = 50
)

// Queue is the offline queue client.
type Queue struct {
	store kv.Store
	limit int64
	log   *zap.Logger
}

// NewQueue builds a queue over the shared store. A non-positive limit
// selects DefaultLimit.
func NewQueue(store kv.Store, limit int64, log *zap.Logger) *Queue {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{store: store, limit: limit, log: log}
}

// Enqueue appends m to userID's queue and trims it to the configured cap.
// Group messages are skipped: offline catch-up for group chat is served by
// clients re-pulling history.
func (q *Queue) Enqueue(ctx context.Context, userID int64, m message.Message) error {
	if m.Kind != message.KindSingle {
		return nil
	}
	data, err := m.Encode()
	if err != nil {
		return err
	}
	key := queueKey(userID)
	if err := q.store.RPush(ctx, key, string(data)); err != nil {
		return fmt.Errorf("enqueue offline message for user %d: %w", userID, err)
	}
	// The push/trim pair is not atomic; a crash in between leaves at most
	// one extra entry until the next enqueue trims again.
	if err := q.store.LTrim(ctx, key, -q.limit, -1); err != nil {
		return fmt.Errorf("trim offline queue for user %d: %w", userID, err)
	}
	q.log.Debug("queued offline message", zap.Int64("user_id", userID))
	return nil
}

// Pending returns userID's queued messages in enqueue order without
// consuming them. Entries that fail to decode are dropped with a log line.
func (q *Queue) Pending(ctx context.Context, userID int64) ([]message.Message, error) {
	raw, err := q.store.LRange(ctx, queueKey(userID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read offline queue for user %d: %w", userID, err)
	}
	msgs := make([]message.Message, 0, len(raw))
	for _, entry := range raw {
		m, err := message.Decode([]byte(entry))
		if err != nil {
			q.log.Warn("discarding undecodable offline entry",
				zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Clear deletes userID's queue after a successful replay.
func (q *Queue) Clear(ctx context.Context, userID int64) error {
	if err := q.store.Del(ctx, queueKey(userID)); err != nil {
		return fmt.Errorf("clear offline queue for user %d: %w", userID, err)
	}
	return nil
}

func queueKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}
