package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sksingh0007/TalkDesk/cmd/internal/ids"
)

// MemoryStore is a dev/test fallback when no database is configured.
// All methods copy on return so callers can never alias internal state.
type MemoryStore struct {
	mu sync.Mutex

	users         map[string]User
	conversations map[string]Conversation
	messages      map[string]Message

	// insertion order for deterministic thread listings when CreatedAt ties
	order map[string]int64
	seq   int64
}

// NewMemoryStore constructs an empty in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]User),
		conversations: make(map[string]Conversation),
		messages:      make(map[string]Message),
		order:         make(map[string]int64),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// SeedUsers loads identity records; the profile subsystem owns these in
// production, the memory store just needs them resolvable.
func (s *MemoryStore) SeedUsers(users ...User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		s.users[u.ID] = cloneUser(u)
	}
}

// GetUser returns the user or ErrNotFound.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(u), nil
}

// GetUsers resolves a batch of ids, skipping unknown ids.
func (s *MemoryStore) GetUsers(ctx context.Context, userIDs []string) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

// GetConversation returns the conversation or ErrNotFound.
func (s *MemoryStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return cloneConversation(c), nil
}

// FindDirectConversation looks up the non-group conversation for {a, b}.
func (s *MemoryStore) FindDirectConversation(ctx context.Context, a, b string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.IsGroup || len(c.Participants) != 2 {
			continue
		}
		if c.HasParticipant(a) && c.HasParticipant(b) {
			return cloneConversation(c), nil
		}
	}
	return Conversation{}, ErrNotFound
}

// ListConversationsForUser returns the user's conversations, most recently
// updated first.
func (s *MemoryStore) ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertConversation persists a new conversation.
func (s *MemoryStore) InsertConversation(ctx context.Context, c Conversation) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.ID == "" {
		id, err := ids.NewULID(c.CreatedAt)
		if err != nil {
			return Conversation{}, err
		}
		c.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = cloneConversation(c)
	return cloneConversation(c), nil
}

// UpdateConversation applies a partial update by id.
func (s *MemoryStore) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	if patch.Participants != nil {
		c.Participants = append([]string(nil), *patch.Participants...)
	}
	if patch.GroupAdmins != nil {
		c.GroupAdmins = append([]string(nil), *patch.GroupAdmins...)
	}
	if patch.GroupName != nil {
		c.GroupName = *patch.GroupName
	}
	if patch.GroupImage != nil {
		c.GroupImage = *patch.GroupImage
	}
	if patch.LastMessageID != nil {
		c.LastMessageID = *patch.LastMessageID
	}
	if !patch.UpdatedAt.IsZero() {
		c.UpdatedAt = patch.UpdatedAt
	} else {
		c.UpdatedAt = time.Now().UTC()
	}
	s.conversations[id] = c
	return cloneConversation(c), nil
}

// GetMessage returns the message or ErrNotFound.
func (s *MemoryStore) GetMessage(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return cloneMessage(m), nil
}

// InsertMessage persists a new message after target validation.
func (s *MemoryStore) InsertMessage(ctx context.Context, m Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if err := m.Target.Validate(); err != nil {
		return Message{}, err
	}
	if m.SenderID == "" {
		return Message{}, ErrInvalidInput
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.ID == "" {
		id, err := ids.NewULID(m.CreatedAt)
		if err != nil {
			return Message{}, err
		}
		m.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.order[m.ID] = s.seq
	s.messages[m.ID] = cloneMessage(m)
	return cloneMessage(m), nil
}

// ListDirectThread returns legacy messages between a and b in creation order.
func (s *MemoryStore) ListDirectThread(ctx context.Context, a, b string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.Target.Mode() != TargetDirect {
			continue
		}
		r := m.Target.ReceiverID()
		if (m.SenderID == a && r == b) || (m.SenderID == b && r == a) {
			out = append(out, cloneMessage(m))
		}
	}
	s.sortThread(out)
	return out, nil
}

// ListConversationThread returns conversation-mode messages in creation order.
func (s *MemoryStore) ListConversationThread(ctx context.Context, conversationID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.Target.Mode() == TargetConversation && m.Target.ConversationID() == conversationID {
			out = append(out, cloneMessage(m))
		}
	}
	s.sortThread(out)
	return out, nil
}

// CountDirectUnseenBySender aggregates unseen legacy messages per sender.
func (s *MemoryStore) CountDirectUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, m := range s.messages {
		if m.Target.Mode() != TargetDirect || m.Target.ReceiverID() != receiverID || m.Seen {
			continue
		}
		counts[m.SenderID]++
	}
	return counts, nil
}

// CountConversationUnseen counts messages in a conversation not yet seen by userID.
func (s *MemoryStore) CountConversationUnseen(ctx context.Context, conversationID, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.Target.Mode() != TargetConversation || m.Target.ConversationID() != conversationID {
			continue
		}
		if m.SenderID == userID || m.SeenByUser(userID) {
			continue
		}
		n++
	}
	return n, nil
}

// MarkDirectSeen flips seen=true on unseen legacy messages sender -> receiver.
func (s *MemoryStore) MarkDirectSeen(ctx context.Context, senderID, receiverID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected []string
	for id, m := range s.messages {
		if m.Target.Mode() != TargetDirect || m.Seen {
			continue
		}
		if m.SenderID != senderID || m.Target.ReceiverID() != receiverID {
			continue
		}
		m.Seen = true
		s.messages[id] = m
		affected = append(affected, id)
	}
	sort.Strings(affected)
	return affected, nil
}

// MarkConversationSeen appends a SeenBy entry for readerID where absent.
func (s *MemoryStore) MarkConversationSeen(ctx context.Context, conversationID, readerID string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.messages {
		if m.Target.Mode() != TargetConversation || m.Target.ConversationID() != conversationID {
			continue
		}
		if m.SenderID == readerID || m.SeenByUser(readerID) {
			continue
		}
		m.SeenBy = append(m.SeenBy, SeenEntry{UserID: readerID, SeenAt: at})
		s.messages[id] = m
		n++
	}
	return n, nil
}

// MarkMessageSeen flips the legacy seen flag on a single message.
func (s *MemoryStore) MarkMessageSeen(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	m.Seen = true
	s.messages[messageID] = m
	return nil
}

// sortThread orders by CreatedAt, breaking ties with insertion order so
// listings are stable when the wall clock does not advance between inserts.
// Caller must hold s.mu.
func (s *MemoryStore) sortThread(msgs []Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return s.order[msgs[i].ID] < s.order[msgs[j].ID]
	})
}

func cloneUser(u User) User {
	u.Friends = append([]string(nil), u.Friends...)
	u.FriendRequests = append([]string(nil), u.FriendRequests...)
	return u
}

func cloneConversation(c Conversation) Conversation {
	c.Participants = append([]string(nil), c.Participants...)
	c.GroupAdmins = append([]string(nil), c.GroupAdmins...)
	return c
}

func cloneMessage(m Message) Message {
	m.SeenBy = append([]SeenEntry(nil), m.SeenBy...)
	return m
}
