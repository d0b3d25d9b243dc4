package history

import (
	"context"
	"sync"

	"github.com/litchat/relay/internal/message"
)

// Memory keeps history in process; tests use it in place of the durable log.
type Memory struct {
	mu        sync.Mutex
	bySession map[int64][]message.Message
	byUser    map[int64][]message.Message
}

// NewMemory builds an empty store.
func NewMemory() *Memory {
	return &Memory{
		bySession: make(map[int64][]message.Message),
		byUser:    make(map[int64][]message.Message),
	}
}

// Append records m under its session (group) or target user (single).
func (s *Memory) Append(_ context.Context, m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Kind == message.KindGroup {
		s.bySession[m.SessionID] = append(s.bySession[m.SessionID], m)
	} else {
		s.byUser[m.TargetUserID] = append(s.byUser[m.TargetUserID], m)
	}
	return nil
}

// QueryBySession returns one page of a session's log, oldest first.
func (s *Memory) QueryBySession(_ context.Context, sessionID int64, page, size int) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.bySession[sessionID]
	start := page * size
	if start >= len(log) || page < 0 || size <= 0 {
		return nil, nil
	}
	end := start + size
	if end > len(log) {
		end = len(log)
	}
	out := make([]message.Message, end-start)
	copy(out, log[start:end])
	return out, nil
}
