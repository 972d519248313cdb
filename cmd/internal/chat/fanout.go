package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Sksingh0007/TalkDesk/cmd/internal/metrics"
	"github.com/Sksingh0007/TalkDesk/cmd/internal/presence"
)

// maxMessageChars bounds message text length (runes).
const maxMessageChars = 4000

// Fanout persists new messages and pushes them to every recipient connection
// currently registered in the presence registry.
//
// Persistence is the priority: a failed last-message pointer update or a
// dropped push is logged and absorbed, never surfaced to the sender. The
// unseen-count accounting in Tracker is the durable substitute for missed
// pushes.
type Fanout struct {
	log      *slog.Logger
	store    Store
	resolver *Resolver
	presence *presence.Registry
	pusher   Pusher

	// threads serializes the persist and push pair per thread, so each
	// connection receives a thread's messages in persistence order even
	// when senders race.
	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// NewFanout constructs a Fanout engine. A nil pusher falls back to NopPusher.
func NewFanout(log *slog.Logger, store Store, resolver *Resolver, reg *presence.Registry, pusher Pusher) (*Fanout, error) {
	if log == nil || store == nil || resolver == nil || reg == nil {
		return nil, ErrInvalidInput
	}
	if pusher == nil {
		pusher = NopPusher{}
	}
	return &Fanout{
		log:      log,
		store:    store,
		resolver: resolver,
		presence: reg,
		pusher:   pusher,
		threads:  make(map[string]*sync.Mutex),
	}, nil
}

// threadLock returns the mutex serializing sends for one thread key. Locks
// are created lazily and live for the process lifetime, bounded by the
// number of active threads.
func (f *Fanout) threadLock(key string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.threads[key]
	if !ok {
		l = &sync.Mutex{}
		f.threads[key] = l
	}
	return l
}

// directThreadKey is order-independent so both directions of a legacy pair
// share one lock.
func directThreadKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "direct:" + a + "|" + b
}

// SendInput carries common send parameters.
type SendInput struct {
	SenderID string
	Payload  Payload
	Now      time.Time
}

func (in SendInput) validate() error {
	if in.SenderID == "" {
		return ErrInvalidInput
	}
	text := strings.TrimSpace(in.Payload.Text)
	if text == "" && in.Payload.Image == "" {
		return ErrInvalidInput
	}
	if len([]rune(text)) > maxMessageChars {
		return ErrInvalidInput
	}
	return nil
}

// SendDirect persists a legacy-mode message to receiverID, resolves or
// creates the implicit direct conversation so conversation listings stay
// consistent, and pushes the message to the receiver's open connections.
func (f *Fanout) SendDirect(ctx context.Context, receiverID string, in SendInput) (Message, error) {
	if receiverID == "" || receiverID == in.SenderID {
		return Message{}, ErrInvalidInput
	}
	if err := in.validate(); err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	lock := f.threadLock(directThreadKey(in.SenderID, receiverID))
	lock.Lock()
	defer lock.Unlock()

	// Stamped under the lock so timestamps never invert insertion order.
	now := nowUTC(in.Now)

	msg, err := f.store.InsertMessage(ctx, Message{
		SenderID:  in.SenderID,
		Target:    DirectTarget(receiverID),
		Text:      strings.TrimSpace(in.Payload.Text),
		Image:     in.Payload.Image,
		CreatedAt: now,
	})
	if err != nil {
		return Message{}, storeErr("insert message", err)
	}
	metrics.MessagesSent.WithLabelValues("direct").Inc()

	// The conversation side effects are recoverable: the message is already
	// durable, so failures here are logged and the send still succeeds.
	if conv, err := f.resolver.ResolveOrCreateDirect(ctx, in.SenderID, receiverID); err != nil {
		f.log.Warn("fanout.direct.resolve_conversation.fail", "sender_id", in.SenderID, "receiver_id", receiverID, "err", err)
	} else if _, err := f.store.UpdateConversation(ctx, conv.ID, ConversationPatch{
		LastMessageID: &msg.ID,
		UpdatedAt:     now,
	}); err != nil {
		f.log.Warn("fanout.direct.last_message.fail", "conversation_id", conv.ID, "message_id", msg.ID, "err", err)
	}

	f.push(ctx, msg, receiverID)
	return msg, nil
}

// SendToConversation persists a conversation-mode message and pushes it to
// every participant other than the sender. Sending implies having seen one's
// own message, so SeenBy is initialized with the sender.
func (f *Fanout) SendToConversation(ctx context.Context, conversationID string, in SendInput) (Message, error) {
	if conversationID == "" {
		return Message{}, ErrInvalidInput
	}
	if err := in.validate(); err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	conv, err := f.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Message{}, notFoundOr("get conversation", err)
	}
	if !conv.HasParticipant(in.SenderID) {
		return Message{}, ErrNotParticipant
	}

	lock := f.threadLock("conversation:" + conversationID)
	lock.Lock()
	defer lock.Unlock()

	// Stamped under the lock so timestamps never invert insertion order.
	now := nowUTC(in.Now)

	msg, err := f.store.InsertMessage(ctx, Message{
		SenderID:  in.SenderID,
		Target:    ConversationTarget(conversationID),
		Text:      strings.TrimSpace(in.Payload.Text),
		Image:     in.Payload.Image,
		SeenBy:    []SeenEntry{{UserID: in.SenderID, SeenAt: now}},
		CreatedAt: now,
	})
	if err != nil {
		return Message{}, storeErr("insert message", err)
	}
	metrics.MessagesSent.WithLabelValues("conversation").Inc()

	if _, err := f.store.UpdateConversation(ctx, conversationID, ConversationPatch{
		LastMessageID: &msg.ID,
		UpdatedAt:     now,
	}); err != nil {
		f.log.Warn("fanout.conversation.last_message.fail", "conversation_id", conversationID, "message_id", msg.ID, "err", err)
	}

	recipients := make([]string, 0, len(conv.Participants)-1)
	for _, p := range conv.Participants {
		if p != in.SenderID {
			recipients = append(recipients, p)
		}
	}
	f.push(ctx, msg, recipients...)
	return msg, nil
}

// DirectConversation returns the implicit direct conversation for {a, b}, or
// ErrNotFound when no direct exchange has created one yet.
func (f *Fanout) DirectConversation(ctx context.Context, a, b string) (Conversation, error) {
	if a == "" || b == "" {
		return Conversation{}, ErrInvalidInput
	}
	conv, err := f.store.FindDirectConversation(ctx, a, b)
	if err != nil {
		return Conversation{}, notFoundOr("find direct conversation", err)
	}
	return conv, nil
}

// push targets every open connection of each recipient. Zero connections is a
// normal outcome; the message stays durably readable on next fetch.
func (f *Fanout) push(ctx context.Context, msg Message, recipients ...string) {
	for _, userID := range recipients {
		connIDs := f.presence.ConnectionsFor(userID)
		if len(connIDs) == 0 {
			continue
		}
		f.pusher.PushMessage(ctx, connIDs, msg)
		f.log.Debug("fanout.push", "message_id", msg.ID, "user_id", userID, "connections", len(connIDs))
	}
}
