package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Sksingh0007/TalkDesk/cmd/internal/chat"
	v1 "github.com/Sksingh0007/TalkDesk/shared/contracts/chat/v1"
)

func newTestTable() *ConnTable {
	return NewConnTable(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConnTable_PushMessageDeliversToTargets(t *testing.T) {
	t.Parallel()

	table := newTestTable()
	bob := NewClient("bob", "bob-1", 8)
	carol := NewClient("carol", "carol-1", 8)
	table.Add(bob)
	table.Add(carol)

	msg := chat.Message{
		ID:        "m1",
		SenderID:  "alice",
		Target:    chat.DirectTarget("bob"),
		Text:      "hello",
		CreatedAt: time.Now().UTC(),
	}
	table.PushMessage(context.Background(), []string{"bob-1"}, msg)

	select {
	case env := <-bob.Send:
		if env.Type != v1.TypeMessageNew {
			t.Fatalf("type=%q want=%q", env.Type, v1.TypeMessageNew)
		}
		var p v1.MessageNewPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if p.MessageID != "m1" || p.SenderID != "alice" || p.ReceiverID != "bob" || p.Text != "hello" {
			t.Fatalf("payload mismatch: %+v", p)
		}
	default:
		t.Fatalf("nothing enqueued for bob")
	}

	select {
	case env := <-carol.Send:
		t.Fatalf("carol must not receive untargeted push: %+v", env)
	default:
	}
}

func TestConnTable_PushSeenAckAndCounts(t *testing.T) {
	t.Parallel()

	table := newTestTable()
	alice := NewClient("alice", "alice-1", 8)
	table.Add(alice)
	ctx := context.Background()

	table.PushSeenAck(ctx, []string{"alice-1"}, "bob", []string{"m1", "m2"})
	table.PushUnseenCounts(ctx, []string{"alice-1"}, map[string]int{"bob": 0})

	env := <-alice.Send
	if env.Type != v1.TypeMessageSeen {
		t.Fatalf("type=%q want=%q", env.Type, v1.TypeMessageSeen)
	}
	var seen v1.MessageSeenPayload
	if err := json.Unmarshal(env.Payload, &seen); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if seen.ReaderID != "bob" || len(seen.MessageIDs) != 2 {
		t.Fatalf("payload mismatch: %+v", seen)
	}

	env = <-alice.Send
	if env.Type != v1.TypeUnseenCount {
		t.Fatalf("type=%q want=%q", env.Type, v1.TypeUnseenCount)
	}
}

func TestConnTable_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	table := newTestTable()
	slow := NewClient("bob", "bob-1", 1)
	table.Add(slow)
	ctx := context.Background()

	table.PushPresence(ctx, []string{"bob-1"}, []string{"alice"})
	// Queue is full now; the second push must not block.
	done := make(chan struct{})
	go func() {
		table.PushPresence(ctx, []string{"bob-1"}, []string{"alice", "bob"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("push blocked on full queue")
	}
}

func TestConnTable_SkipsClosedAndUnknownClients(t *testing.T) {
	t.Parallel()

	table := newTestTable()
	bob := NewClient("bob", "bob-1", 8)
	table.Add(bob)
	table.Remove("bob-1")

	select {
	case <-bob.Done():
	default:
		t.Fatalf("Remove must signal client shutdown")
	}

	// Pushing to removed or unknown connections is a silent no-op.
	table.PushPresence(context.Background(), []string{"bob-1", "ghost"}, []string{"alice"})
	select {
	case env := <-bob.Send:
		t.Fatalf("removed client received push: %+v", env)
	default:
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c := NewClient("alice", "alice-1", 0)
	c.Close()
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Fatalf("Done must be closed after Close")
	}
}
