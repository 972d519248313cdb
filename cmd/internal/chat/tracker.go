package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sksingh0007/TalkDesk/cmd/internal/metrics"
	"github.com/Sksingh0007/TalkDesk/cmd/internal/presence"
)

// Tracker computes per-recipient unread counts, mutates read markers when a
// recipient opens a thread, and pushes seen-acknowledgements back to the
// original sender's live connections.
//
// Both historical addressing schemes are reconciled here under one counting
// path: legacy direct messages count by sender, conversation-mode messages
// count by conversation, and a direct thread's total is the sum of its legacy
// and conversation-mode unread messages (the two sets are disjoint by
// addressing exclusivity, so nothing is double-counted or dropped).
type Tracker struct {
	log      *slog.Logger
	store    Store
	presence *presence.Registry
	pusher   Pusher
}

// NewTracker constructs a Tracker. A nil pusher falls back to NopPusher.
func NewTracker(log *slog.Logger, store Store, reg *presence.Registry, pusher Pusher) (*Tracker, error) {
	if log == nil || store == nil || reg == nil {
		return nil, ErrInvalidInput
	}
	if pusher == nil {
		pusher = NopPusher{}
	}
	return &Tracker{log: log, store: store, presence: reg, pusher: pusher}, nil
}

// UnseenCountsForUser returns unread counts keyed by peer user id for direct
// threads and by conversation id for groups. Messages authored by userID are
// never counted.
func (t *Tracker) UnseenCountsForUser(ctx context.Context, userID string) (map[string]int, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts, err := t.store.CountDirectUnseenBySender(ctx, userID)
	if err != nil {
		return nil, storeErr("count direct unseen", err)
	}
	if counts == nil {
		counts = make(map[string]int)
	}

	convs, err := t.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}

	for _, conv := range convs {
		n, err := t.store.CountConversationUnseen(ctx, conv.ID, userID)
		if err != nil {
			return nil, storeErr("count conversation unseen", err)
		}
		if conv.IsGroup {
			counts[conv.ID] = n
			continue
		}
		// Direct conversations fold into the peer's key so both addressing
		// schemes surface as one thread.
		peer := conv.OtherParticipant(userID)
		if peer == "" {
			continue
		}
		counts[peer] += n
	}
	return counts, nil
}

// MarkDirectThreadSeen marks every unseen legacy message from peerID to
// readerID as seen, then pushes a seen-acknowledgement and refreshed unseen
// counts to peerID's open connections. No matching messages is a no-op
// success.
func (t *Tracker) MarkDirectThreadSeen(ctx context.Context, readerID, peerID string) ([]string, error) {
	if readerID == "" || peerID == "" || readerID == peerID {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	affected, err := t.store.MarkDirectSeen(ctx, peerID, readerID)
	if err != nil {
		return nil, storeErr("mark direct seen", err)
	}
	if len(affected) == 0 {
		return nil, nil
	}
	metrics.ThreadsMarkedSeen.WithLabelValues("direct").Inc()
	t.log.Debug("tracker.direct.seen", "reader_id", readerID, "peer_id", peerID, "messages", len(affected))

	t.notifyPeer(ctx, readerID, peerID, affected)
	return affected, nil
}

// MarkConversationThreadSeen appends a SeenBy entry for readerID to every
// conversation message not authored and not yet seen by readerID. Idempotent.
// The authoritative side effect is visible on next fetch; no bulk push to
// other participants happens here.
func (t *Tracker) MarkConversationThreadSeen(ctx context.Context, readerID, conversationID string) error {
	if readerID == "" || conversationID == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conv, err := t.store.GetConversation(ctx, conversationID)
	if err != nil {
		return notFoundOr("get conversation", err)
	}
	if !conv.HasParticipant(readerID) {
		return ErrNotParticipant
	}

	n, err := t.store.MarkConversationSeen(ctx, conversationID, readerID, time.Now().UTC())
	if err != nil {
		return storeErr("mark conversation seen", err)
	}
	if n > 0 {
		metrics.ThreadsMarkedSeen.WithLabelValues("conversation").Inc()
		t.log.Debug("tracker.conversation.seen", "reader_id", readerID, "conversation_id", conversationID, "messages", n)
	}
	return nil
}

// MarkMessageSeen flips the legacy seen flag on a single message. Only the
// message's receiver may mark it; anyone else gets ErrNotParticipant. The
// sender is notified the same way a thread mark is.
func (t *Tracker) MarkMessageSeen(ctx context.Context, readerID, messageID string) error {
	if readerID == "" || messageID == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := t.store.GetMessage(ctx, messageID)
	if err != nil {
		return notFoundOr("get message", err)
	}
	if readerID != msg.Target.ReceiverID() {
		return ErrNotParticipant
	}
	if msg.Seen {
		return nil
	}

	if err := t.store.MarkMessageSeen(ctx, messageID); err != nil {
		return notFoundOr("mark message seen", err)
	}
	t.notifyPeer(ctx, readerID, msg.SenderID, []string{messageID})
	return nil
}

// DirectThread returns the legacy message history between readerID and peerID
// (both directions, creation order) and marks the unseen half addressed to
// readerID as seen, notifying the peer.
func (t *Tracker) DirectThread(ctx context.Context, readerID, peerID string) ([]Message, error) {
	if readerID == "" || peerID == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs, err := t.store.ListDirectThread(ctx, readerID, peerID)
	if err != nil {
		return nil, storeErr("list direct thread", err)
	}
	if _, err := t.MarkDirectThreadSeen(ctx, readerID, peerID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ConversationThread returns a conversation's message history in creation
// order and marks it seen for readerID. Fails with ErrNotParticipant when
// readerID is not a member.
func (t *Tracker) ConversationThread(ctx context.Context, readerID, conversationID string) ([]Message, error) {
	if readerID == "" || conversationID == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conv, err := t.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFoundOr("get conversation", err)
	}
	if !conv.HasParticipant(readerID) {
		return nil, ErrNotParticipant
	}

	msgs, err := t.store.ListConversationThread(ctx, conversationID)
	if err != nil {
		return nil, storeErr("list conversation thread", err)
	}
	if _, err := t.store.MarkConversationSeen(ctx, conversationID, readerID, time.Now().UTC()); err != nil {
		return nil, storeErr("mark conversation seen", err)
	}
	return msgs, nil
}

// notifyPeer pushes a seen-ack plus the peer's refreshed unseen counts to
// every open connection of peerID. Push failures are absorbed.
func (t *Tracker) notifyPeer(ctx context.Context, readerID, peerID string, messageIDs []string) {
	connIDs := t.presence.ConnectionsFor(peerID)
	if len(connIDs) == 0 {
		return
	}

	t.pusher.PushSeenAck(ctx, connIDs, readerID, messageIDs)

	counts, err := t.UnseenCountsForUser(ctx, peerID)
	if err != nil {
		t.log.Warn("tracker.unseen_refresh.fail", "peer_id", peerID, "err", err)
		return
	}
	t.pusher.PushUnseenCounts(ctx, connIDs, counts)
}
