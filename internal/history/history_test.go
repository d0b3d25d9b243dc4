package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/litchat/relay/internal/kv"
	"github.com/litchat/relay/internal/message"
)

func groupMsg(seq int) message.Message {
	return message.Message{
		Kind:      message.KindGroup,
		SenderID:  1,
		SessionID: 100,
		Content:   fmt.Sprintf("msg-%03d", seq),
		Timestamp: int64(1700000000000 + seq),
	}
}

// Both implementations must page identically.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemory(),
		"kv":     NewKVStore(kv.NewMemory()),
	}
}

func TestQueryBySessionPaging(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 25; i++ {
				if err := s.Append(ctx, groupMsg(i)); err != nil {
					t.Fatalf("Append #%d: %v", i, err)
				}
			}

			page0, err := s.QueryBySession(ctx, 100, 0, 10)
			if err != nil {
				t.Fatalf("QueryBySession page 0: %v", err)
			}
			if len(page0) != 10 || page0[0].Content != "msg-000" || page0[9].Content != "msg-009" {
				t.Fatalf("page 0 = %d entries [%s .. %s]", len(page0), page0[0].Content, page0[len(page0)-1].Content)
			}

			page2, err := s.QueryBySession(ctx, 100, 2, 10)
			if err != nil {
				t.Fatalf("QueryBySession page 2: %v", err)
			}
			if len(page2) != 5 || page2[0].Content != "msg-020" {
				t.Fatalf("partial last page = %d entries starting %q, want 5 starting msg-020", len(page2), page2[0].Content)
			}

			beyond, err := s.QueryBySession(ctx, 100, 3, 10)
			if err != nil || len(beyond) != 0 {
				t.Fatalf("page past end = %d entries, %v; want empty", len(beyond), err)
			}
		})
	}
}

func TestQueryBySessionEdgeCases(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if got, err := s.QueryBySession(ctx, 999, 0, 10); err != nil || len(got) != 0 {
				t.Fatalf("unknown session = %d entries, %v", len(got), err)
			}
			if err := s.Append(ctx, groupMsg(0)); err != nil {
				t.Fatalf("Append: %v", err)
			}
			if got, _ := s.QueryBySession(ctx, 100, -1, 10); len(got) != 0 {
				t.Fatalf("negative page returned %d entries", len(got))
			}
			if got, _ := s.QueryBySession(ctx, 100, 0, 0); len(got) != 0 {
				t.Fatalf("zero size returned %d entries", len(got))
			}
		})
	}
}

func TestAppendKeysByKind(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	s := NewKVStore(store)

	single := message.Message{Kind: message.KindSingle, SenderID: 1, TargetUserID: 2, Content: "hi", Timestamp: 1}
	if err := s.Append(ctx, single); err != nil {
		t.Fatalf("Append single: %v", err)
	}
	if err := s.Append(ctx, groupMsg(0)); err != nil {
		t.Fatalf("Append group: %v", err)
	}

	// Single chat must land under the target user, not under a session.
	raw, err := store.LRange(ctx, "chat:history:user:2", 0, -1)
	if err != nil || len(raw) != 1 {
		t.Fatalf("user log = %d entries, %v; want 1", len(raw), err)
	}
	raw, err = store.LRange(ctx, "chat:history:session:100", 0, -1)
	if err != nil || len(raw) != 1 {
		t.Fatalf("session log = %d entries, %v; want 1", len(raw), err)
	}
}
