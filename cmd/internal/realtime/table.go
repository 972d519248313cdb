package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Sksingh0007/TalkDesk/cmd/internal/chat"
	"github.com/Sksingh0007/TalkDesk/cmd/internal/metrics"
	v1 "github.com/Sksingh0007/TalkDesk/shared/contracts/chat/v1"
)

// ConnTable maps connection ids to live clients and is the transport side of
// the core's push port: the core decides which connection ids to target, the
// table turns them into enqueued envelopes.
//
// Concurrency guarantees:
// - Add/Remove are safe under concurrent pushes.
// - Pushes never block (drop under backpressure).
// - Pushes are panic-safe because Client.Send is never closed by the server.
type ConnTable struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewConnTable constructs an empty ConnTable.
func NewConnTable(log *slog.Logger) *ConnTable {
	return &ConnTable{
		log:     log,
		clients: make(map[string]*Client),
	}
}

// Add registers a live client under its connection id.
func (t *ConnTable) Add(client *Client) {
	if t == nil || client == nil || client.ConnID == "" {
		return
	}
	t.mu.Lock()
	t.clients[client.ConnID] = client
	t.mu.Unlock()

	metrics.OpenConnections.Inc()
	t.log.Info("conn.add", "conn_id", client.ConnID, "user_id", client.UserID)
}

// Remove removes a client and signals shutdown for it.
func (t *ConnTable) Remove(connID string) {
	if t == nil || connID == "" {
		return
	}

	var cl *Client
	t.mu.Lock()
	cl = t.clients[connID]
	delete(t.clients, connID)
	t.mu.Unlock()

	// Signal client shutdown after removing from the table. This ordering
	// avoids race windows where a pusher still holds a pointer while the
	// client goroutines are being torn down.
	if cl != nil {
		cl.Close()
		metrics.OpenConnections.Dec()
		t.log.Info("conn.remove", "conn_id", connID, "user_id", cl.UserID)
	}
}

// PushMessage implements chat.Pusher.
func (t *ConnTable) PushMessage(ctx context.Context, connIDs []string, msg chat.Message) {
	payload, _ := json.Marshal(messagePayload(msg))
	t.deliver(ctx, connIDs, NewEnvelope(v1.TypeMessageNew, payload, time.Now().UTC()))
}

// PushSeenAck implements chat.Pusher.
func (t *ConnTable) PushSeenAck(ctx context.Context, connIDs []string, readerID string, messageIDs []string) {
	payload, _ := json.Marshal(v1.MessageSeenPayload{ReaderID: readerID, MessageIDs: messageIDs})
	t.deliver(ctx, connIDs, NewEnvelope(v1.TypeMessageSeen, payload, time.Now().UTC()))
}

// PushUnseenCounts implements chat.Pusher.
func (t *ConnTable) PushUnseenCounts(ctx context.Context, connIDs []string, counts map[string]int) {
	payload, _ := json.Marshal(v1.UnseenCountPayload{Counts: counts})
	t.deliver(ctx, connIDs, NewEnvelope(v1.TypeUnseenCount, payload, time.Now().UTC()))
}

// PushPresence implements chat.Pusher.
func (t *ConnTable) PushPresence(ctx context.Context, connIDs []string, online []string) {
	payload, _ := json.Marshal(v1.PresencePayload{Online: online})
	t.deliver(ctx, connIDs, NewEnvelope(v1.TypePresence, payload, time.Now().UTC()))
}

// deliver enqueues one envelope per target connection.
// Non-blocking: if a client queue is full or the client is shutting down, the
// envelope is dropped; unseen-count accounting is the durable backstop.
func (t *ConnTable) deliver(ctx context.Context, connIDs []string, env v1.Envelope) {
	if t == nil || len(connIDs) == 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	default:
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, connID := range connIDs {
		cl := t.clients[connID]
		if cl == nil {
			continue
		}

		select {
		case <-cl.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case cl.Send <- env:
			metrics.PushesDelivered.Inc()
		default:
			// Drop rather than block the whole fan-out.
			metrics.PushesDropped.Inc()
			t.log.Debug("conn.push.drop", "conn_id", connID, "type", env.Type)
		}
	}
}

func messagePayload(m chat.Message) v1.MessageNewPayload {
	out := v1.MessageNewPayload{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Image:     m.Image,
		Seen:      m.Seen,
		CreatedAt: m.CreatedAt,
	}
	switch m.Target.Mode() {
	case chat.TargetDirect:
		out.ReceiverID = m.Target.ReceiverID()
	case chat.TargetConversation:
		out.ConversationID = m.Target.ConversationID()
	}
	for _, e := range m.SeenBy {
		out.SeenBy = append(out.SeenBy, v1.SeenEntry{UserID: e.UserID, SeenAt: e.SeenAt})
	}
	return out
}
