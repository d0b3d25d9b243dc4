package history

import (
	"context"
	"fmt"
	"strconv"

	"github.com/litchat/relay/internal/kv"
	"github.com/litchat/relay/internal/message"
)

const (
	sessionKeyPrefix = "chat:history:session:"
	userKeyPrefix    = "chat:history:user:"
)

// KVStore keeps the message log in the shared KV store as append-only lists.
// Deployments with a dedicated document store swap this out behind the Store
// interface.
type KVStore struct {
	store kv.Store
}

// NewKVStore builds a log over the shared store.
func NewKVStore(store kv.Store) *KVStore {
	return &KVStore{store: store}
}

// Append records m under its session (group) or target user (single).
func (s *KVStore) Append(ctx context.Context, m message.Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	key := userKeyPrefix + strconv.FormatInt(m.TargetUserID, 10)
	if m.Kind == message.KindGroup {
		key = sessionKeyPrefix + strconv.FormatInt(m.SessionID, 10)
	}
	if err := s.store.RPush(ctx, key, string(data)); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// QueryBySession returns one page of a session's log, oldest first.
func (s *KVStore) QueryBySession(ctx context.Context, sessionID int64, page, size int) ([]message.Message, error) {
	if page < 0 || size <= 0 {
		return nil, nil
	}
	start := int64(page) * int64(size)
	stop := start + int64(size) - 1
	raw, err := s.store.LRange(ctx, sessionKeyPrefix+strconv.FormatInt(sessionID, 10), start, stop)
	if err != nil {
		return nil, fmt.Errorf("query history for session %d: %w", sessionID, err)
	}
	msgs := make([]message.Message, 0, len(raw))
	for _, entry := range raw {
		m, err := message.Decode([]byte(entry))
		if err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
