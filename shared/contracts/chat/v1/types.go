// Package v1 defines the TalkDesk realtime chat protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the session handshake (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeMessageSend requests sending a new message (client -> server).
	// Exactly one of to_user_id / conversation_id must be set.
	TypeMessageSend = "message_send"
	// TypeMessageAck acknowledges a send request (server -> client).
	TypeMessageAck = "message_ack"
	// TypeMessageNew delivers a newly accepted message (server -> recipient connections).
	TypeMessageNew = "message_new"

	// TypeThreadOpen reports that the client opened a thread; the server marks
	// the thread read and notifies the counterparty (client -> server).
	TypeThreadOpen = "thread_open"
	// TypeMessageSeen notifies a sender that messages were read (server -> client).
	TypeMessageSeen = "message_seen"
	// TypeUnseenCount carries refreshed per-thread unread counts (server -> client).
	TypeUnseenCount = "unseen_count"

	// TypeHistoryFetch requests a thread history window (client -> server).
	TypeHistoryFetch = "history_fetch"
	// TypeHistoryChunk returns a window of history (server -> client).
	TypeHistoryChunk = "history_chunk"

	// TypePresence carries the full online-user snapshot (server -> all clients).
	TypePresence = "presence"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeMessageSend,
		TypeMessageAck,
		TypeMessageNew,
		TypeThreadOpen,
		TypeMessageSeen,
		TypeUnseenCount,
		TypeHistoryFetch,
		TypeHistoryChunk,
		TypePresence,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client to initiate a session.
type HelloPayload struct{}

// HelloAckPayload returns the server-assigned connection id.
type HelloAckPayload struct {
	ConnID string `json:"conn_id"`
	UserID string `json:"user_id"`
}

// MessageSendPayload requests sending a message.
// Exactly one of ToUserID (direct mode) or ConversationID must be set.
type MessageSendPayload struct {
	ToUserID       string `json:"to_user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Image          string `json:"image,omitempty"`
}

// MessageAckPayload acknowledges a send request and returns the canonical server id.
type MessageAckPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// SeenEntry records one reader of a conversation-mode message.
type SeenEntry struct {
	UserID string    `json:"user_id"`
	SeenAt time.Time `json:"seen_at"`
}

// MessageNewPayload delivers an accepted message to recipient connections.
type MessageNewPayload struct {
	MessageID      string      `json:"message_id"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Text           string      `json:"text,omitempty"`
	Image          string      `json:"image,omitempty"`
	Seen           bool        `json:"seen"`
	SeenBy         []SeenEntry `json:"seen_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ThreadOpenPayload reports that the client opened a thread.
// Exactly one of PeerID (legacy direct thread) or ConversationID must be set.
type ThreadOpenPayload struct {
	PeerID         string `json:"peer_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// MessageSeenPayload notifies the original sender which messages were read.
type MessageSeenPayload struct {
	ReaderID   string   `json:"reader_id"`
	MessageIDs []string `json:"message_ids"`
}

// UnseenCountPayload carries refreshed unread counts keyed by peer user id
// (direct threads) or conversation id (groups).
type UnseenCountPayload struct {
	Counts map[string]int `json:"counts"`
}

// HistoryFetchPayload requests a thread history window.
// Exactly one of PeerID or ConversationID must be set.
type HistoryFetchPayload struct {
	PeerID         string `json:"peer_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// HistoryChunkPayload returns messages for a history fetch request.
type HistoryChunkPayload struct {
	PeerID         string              `json:"peer_id,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Messages       []MessageNewPayload `json:"messages"`
}

// PresencePayload is the full online-user snapshot broadcast on every
// connect/disconnect transition.
type PresencePayload struct {
	Online []string `json:"online"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
