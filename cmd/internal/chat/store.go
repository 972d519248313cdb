package chat

import (
	"context"
	"time"
)

// ConversationPatch is a partial update; nil fields are left untouched.
type ConversationPatch struct {
	Participants  *[]string
	GroupAdmins   *[]string
	GroupName     *string
	GroupImage    *string
	LastMessageID *string
	UpdatedAt     time.Time
}

// UserStore is the identity read boundary. The profile subsystem owns writes.
type UserStore interface {
	// GetUser returns the user or ErrNotFound.
	GetUser(ctx context.Context, id string) (User, error)
	// GetUsers resolves a batch of ids, skipping ids that do not resolve.
	GetUsers(ctx context.Context, ids []string) ([]User, error)
}

// ConversationStore is the persistence boundary for conversations.
type ConversationStore interface {
	// GetConversation returns the conversation or ErrNotFound.
	GetConversation(ctx context.Context, id string) (Conversation, error)
	// FindDirectConversation returns the non-group conversation whose
	// participant set equals {a, b}, or ErrNotFound.
	FindDirectConversation(ctx context.Context, a, b string) (Conversation, error)
	// ListConversationsForUser returns every conversation the user
	// participates in, most recently updated first.
	ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error)
	// InsertConversation persists a new conversation and returns it with
	// server-assigned fields populated.
	InsertConversation(ctx context.Context, c Conversation) (Conversation, error)
	// UpdateConversation applies a partial update by id and returns the
	// refreshed record, or ErrNotFound.
	UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (Conversation, error)
}

// MessageStore is the persistence boundary for messages under both
// addressing schemes.
type MessageStore interface {
	// GetMessage returns the message or ErrNotFound.
	GetMessage(ctx context.Context, id string) (Message, error)
	// InsertMessage persists a new message after target validation.
	InsertMessage(ctx context.Context, m Message) (Message, error)

	// ListDirectThread returns legacy messages between a and b, both
	// directions, in creation order.
	ListDirectThread(ctx context.Context, a, b string) ([]Message, error)
	// ListConversationThread returns conversation-mode messages in creation order.
	ListConversationThread(ctx context.Context, conversationID string) ([]Message, error)

	// CountDirectUnseenBySender returns, per sender, the number of legacy
	// messages addressed to receiverID with seen == false.
	CountDirectUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error)
	// CountConversationUnseen counts conversation-mode messages in
	// conversationID not authored by userID and lacking a SeenBy entry for
	// userID.
	CountConversationUnseen(ctx context.Context, conversationID, userID string) (int, error)

	// MarkDirectSeen flips seen=true on every unseen legacy message from
	// senderID to receiverID and returns the affected message ids. No
	// matches is a no-op success.
	MarkDirectSeen(ctx context.Context, senderID, receiverID string) ([]string, error)
	// MarkConversationSeen appends a SeenBy entry for readerID to every
	// conversation-mode message not authored and not yet seen by readerID.
	// Idempotent; returns the number of messages touched.
	MarkConversationSeen(ctx context.Context, conversationID, readerID string, at time.Time) (int, error)
	// MarkMessageSeen flips the legacy seen flag on a single message.
	MarkMessageSeen(ctx context.Context, messageID string) error
}

// Store is the full persistence boundary consumed by the core.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	Close() error
}
