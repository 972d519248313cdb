// Package chat contains the TalkDesk messaging core: conversation resolution,
// message fan-out, and per-recipient read-state tracking.
package chat

import (
	"errors"
	"time"
)

// User is the identity/profile projection the core reads. The profile
// subsystem owns the full record; the core only needs identity and friend-set
// membership.
type User struct {
	ID             string
	FullName       string
	Username       string
	Email          string
	ProfilePic     string
	Bio            string
	Friends        []string
	FriendRequests []string
}

// Conversation is the addressable unit for both 1-1 and group messaging.
// A 1-1 conversation is created implicitly on first direct message.
type Conversation struct {
	ID           string
	Participants []string
	IsGroup      bool
	GroupAdmins  []string
	GroupName    string
	GroupImage   string

	// LastMessageID is a weak reference to the most recent message. A stale
	// pointer is a cosmetic defect, never a correctness violation.
	LastMessageID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasParticipant reports whether userID is a participant.
func (c Conversation) HasParticipant(userID string) bool {
	return containsID(c.Participants, userID)
}

// HasAdmin reports whether userID is a group admin.
func (c Conversation) HasAdmin(userID string) bool {
	return containsID(c.GroupAdmins, userID)
}

// OtherParticipant returns the counterparty of a direct conversation.
func (c Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ConversationDetail is a Conversation with participant identities resolved,
// so callers can consume mutation results without a second round trip.
type ConversationDetail struct {
	Conversation
	ParticipantUsers []User
	LastMessage      *Message
}

// TargetMode discriminates the two historical message addressing schemes.
type TargetMode uint8

const (
	// TargetDirect is the legacy user-to-user addressing mode.
	TargetDirect TargetMode = iota + 1
	// TargetConversation addresses a conversation (1-1 or group).
	TargetConversation
)

// MessageTarget is a sum type over the two addressing schemes. The persisted
// record keeps both fields nullable for historical compatibility; this type
// exists so core code can never observe a dual-set or dual-null state.
type MessageTarget struct {
	mode           TargetMode
	receiverID     string
	conversationID string
}

// DirectTarget addresses a single recipient user (legacy mode).
func DirectTarget(receiverID string) MessageTarget {
	return MessageTarget{mode: TargetDirect, receiverID: receiverID}
}

// ConversationTarget addresses a conversation.
func ConversationTarget(conversationID string) MessageTarget {
	return MessageTarget{mode: TargetConversation, conversationID: conversationID}
}

// Mode returns the addressing mode, or 0 for the zero value.
func (t MessageTarget) Mode() TargetMode { return t.mode }

// ReceiverID returns the recipient user id for direct targets.
func (t MessageTarget) ReceiverID() string { return t.receiverID }

// ConversationID returns the conversation id for conversation targets.
func (t MessageTarget) ConversationID() string { return t.conversationID }

// Validate enforces addressing exclusivity on write.
func (t MessageTarget) Validate() error {
	switch t.mode {
	case TargetDirect:
		if t.receiverID == "" {
			return errors.New("chat: direct target missing receiver id")
		}
		if t.conversationID != "" {
			return errors.New("chat: direct target must not carry a conversation id")
		}
	case TargetConversation:
		if t.conversationID == "" {
			return errors.New("chat: conversation target missing conversation id")
		}
		if t.receiverID != "" {
			return errors.New("chat: conversation target must not carry a receiver id")
		}
	default:
		return errors.New("chat: message target not set")
	}
	return nil
}

// SeenEntry records that a user has read a conversation-mode message.
// At most one entry per user; entries are never revoked.
type SeenEntry struct {
	UserID string
	SeenAt time.Time
}

// Message is a persisted chat message under either addressing scheme.
type Message struct {
	ID       string
	SenderID string
	Target   MessageTarget

	Text  string
	Image string

	// Seen is the legacy direct-mode read flag.
	Seen bool
	// SeenBy is the conversation-mode read set (monotonically growing).
	SeenBy []SeenEntry

	CreatedAt time.Time
}

// SeenByUser reports whether userID has a SeenBy entry.
func (m Message) SeenByUser(userID string) bool {
	for _, e := range m.SeenBy {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// Payload is the caller-supplied message content. Image is a pre-uploaded
// object-store reference; the core stores the string as-is.
type Payload struct {
	Text  string
	Image string
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
