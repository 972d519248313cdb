package chat

import "context"

// Pusher is the outbound port to the transport adapter. The core decides what
// to deliver and to which connection ids; the adapter owns writing bytes to
// each open connection. Delivery is best-effort: a failed or dropped push is
// never surfaced to the sender, because durable storage already succeeded and
// unseen-count accounting is the correctness backstop.
type Pusher interface {
	// PushMessage delivers a new message to the given connections.
	PushMessage(ctx context.Context, connIDs []string, msg Message)
	// PushSeenAck tells a sender's connections which of their messages were read.
	PushSeenAck(ctx context.Context, connIDs []string, readerID string, messageIDs []string)
	// PushUnseenCounts delivers refreshed unread counts to a user's connections.
	PushUnseenCounts(ctx context.Context, connIDs []string, counts map[string]int)
	// PushPresence broadcasts the online-user snapshot to the given connections.
	PushPresence(ctx context.Context, connIDs []string, online []string)
}

// NopPusher discards every push. Useful when no transport adapter is mounted.
type NopPusher struct{}

func (NopPusher) PushMessage(context.Context, []string, Message)             {}
func (NopPusher) PushSeenAck(context.Context, []string, string, []string)    {}
func (NopPusher) PushUnseenCounts(context.Context, []string, map[string]int) {}
func (NopPusher) PushPresence(context.Context, []string, []string)           {}
