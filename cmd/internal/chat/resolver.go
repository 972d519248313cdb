package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Resolver resolves or lazily creates canonical Conversation records and owns
// the group membership/metadata mutations.
//
// Direct-pair uniqueness is enforced by find-before-create, not by a storage
// constraint: a duplicate created under concurrent calls is tolerated
// (last-writer-wins) and harmless to callers.
type Resolver struct {
	log   *slog.Logger
	store Store
}

// NewResolver constructs a Resolver.
func NewResolver(log *slog.Logger, store Store) (*Resolver, error) {
	if log == nil || store == nil {
		return nil, ErrInvalidInput
	}
	return &Resolver{log: log, store: store}, nil
}

// ResolveOrCreateDirect returns the non-group conversation for {a, b},
// creating it on first use.
func (r *Resolver) ResolveOrCreateDirect(ctx context.Context, a, b string) (Conversation, error) {
	if a == "" || b == "" || a == b {
		return Conversation{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	conv, err := r.store.FindDirectConversation(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, storeErr("find direct conversation", err)
	}

	created, err := r.store.InsertConversation(ctx, Conversation{
		Participants: []string{a, b},
		IsGroup:      false,
	})
	if err != nil {
		return Conversation{}, storeErr("create direct conversation", err)
	}

	r.log.Info("resolver.direct.create", "conversation_id", created.ID, "a", a, "b", b)
	return created, nil
}

// GroupInput describes group creation.
type GroupInput struct {
	CreatorID      string
	Name           string
	ParticipantIDs []string
}

// CreateGroup creates a group conversation. The creator is always a
// participant and the initial admin. Fewer than two effective participants
// fails with ErrInvalidGroupSize.
func (r *Resolver) CreateGroup(ctx context.Context, in GroupInput) (ConversationDetail, error) {
	if in.CreatorID == "" {
		return ConversationDetail{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return ConversationDetail{}, err
	}

	participants := dedupeIDs(append([]string{in.CreatorID}, in.ParticipantIDs...))
	if len(participants) < 2 {
		return ConversationDetail{}, ErrInvalidGroupSize
	}

	created, err := r.store.InsertConversation(ctx, Conversation{
		Participants: participants,
		IsGroup:      true,
		GroupAdmins:  []string{in.CreatorID},
		GroupName:    in.Name,
	})
	if err != nil {
		return ConversationDetail{}, storeErr("create group", err)
	}

	r.log.Info("resolver.group.create",
		"conversation_id", created.ID,
		"creator_id", in.CreatorID,
		"participants", len(participants),
	)
	return r.detail(ctx, created)
}

// AddMember appends targetUserID to a group. Admin-only.
func (r *Resolver) AddMember(ctx context.Context, conversationID, actingUserID, targetUserID string) (ConversationDetail, error) {
	if conversationID == "" || actingUserID == "" || targetUserID == "" {
		return ConversationDetail{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return ConversationDetail{}, err
	}

	conv, err := r.loadGroup(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}
	if !conv.HasAdmin(actingUserID) {
		return ConversationDetail{}, ErrNotAdmin
	}
	if conv.HasParticipant(targetUserID) {
		return ConversationDetail{}, ErrAlreadyMember
	}

	participants := append(append([]string(nil), conv.Participants...), targetUserID)
	updated, err := r.store.UpdateConversation(ctx, conversationID, ConversationPatch{
		Participants: &participants,
	})
	if err != nil {
		return ConversationDetail{}, storeErr("add member", err)
	}

	r.log.Info("resolver.member.add", "conversation_id", conversationID, "target", targetUserID, "by", actingUserID)
	return r.detail(ctx, updated)
}

// RemoveMember removes targetUserID from a group. Admin-only; admins cannot
// be removed, and the group never shrinks below two participants.
func (r *Resolver) RemoveMember(ctx context.Context, conversationID, actingUserID, targetUserID string) (ConversationDetail, error) {
	if conversationID == "" || actingUserID == "" || targetUserID == "" {
		return ConversationDetail{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return ConversationDetail{}, err
	}

	conv, err := r.loadGroup(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}
	if !conv.HasAdmin(actingUserID) {
		return ConversationDetail{}, ErrNotAdmin
	}
	if !conv.HasParticipant(targetUserID) {
		return ConversationDetail{}, ErrNotMember
	}
	if conv.HasAdmin(targetUserID) {
		return ConversationDetail{}, ErrCannotRemoveAdmin
	}
	if len(conv.Participants)-1 < 2 {
		return ConversationDetail{}, ErrBelowMinimumSize
	}

	participants := make([]string, 0, len(conv.Participants)-1)
	for _, p := range conv.Participants {
		if p != targetUserID {
			participants = append(participants, p)
		}
	}
	updated, err := r.store.UpdateConversation(ctx, conversationID, ConversationPatch{
		Participants: &participants,
	})
	if err != nil {
		return ConversationDetail{}, storeErr("remove member", err)
	}

	r.log.Info("resolver.member.remove", "conversation_id", conversationID, "target", targetUserID, "by", actingUserID)
	return r.detail(ctx, updated)
}

// MetadataInput is a partial group metadata update; nil fields are untouched.
type MetadataInput struct {
	Name  *string
	Image *string
}

// UpdateMetadata updates group name/image. Admin-only.
func (r *Resolver) UpdateMetadata(ctx context.Context, conversationID, actingUserID string, in MetadataInput) (ConversationDetail, error) {
	if conversationID == "" || actingUserID == "" {
		return ConversationDetail{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return ConversationDetail{}, err
	}

	conv, err := r.loadGroup(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}
	if !conv.HasAdmin(actingUserID) {
		return ConversationDetail{}, ErrNotAdmin
	}

	updated, err := r.store.UpdateConversation(ctx, conversationID, ConversationPatch{
		GroupName:  in.Name,
		GroupImage: in.Image,
	})
	if err != nil {
		return ConversationDetail{}, storeErr("update metadata", err)
	}

	r.log.Info("resolver.metadata.update", "conversation_id", conversationID, "by", actingUserID)
	return r.detail(ctx, updated)
}

// Detail resolves participant identities and the last message for a
// conversation, for direct consumption by callers.
func (r *Resolver) Detail(ctx context.Context, conversationID string) (ConversationDetail, error) {
	if conversationID == "" {
		return ConversationDetail{}, ErrInvalidInput
	}
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ConversationDetail{}, ErrNotFound
		}
		return ConversationDetail{}, storeErr("get conversation", err)
	}
	return r.detail(ctx, conv)
}

func (r *Resolver) loadGroup(ctx context.Context, conversationID string) (Conversation, error) {
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, storeErr("get conversation", err)
	}
	if !conv.IsGroup {
		return Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (r *Resolver) detail(ctx context.Context, conv Conversation) (ConversationDetail, error) {
	users, err := r.store.GetUsers(ctx, conv.Participants)
	if err != nil {
		return ConversationDetail{}, storeErr("resolve participants", err)
	}

	out := ConversationDetail{Conversation: conv, ParticipantUsers: users}
	if conv.LastMessageID != "" {
		if msg, err := r.store.GetMessage(ctx, conv.LastMessageID); err == nil {
			out.LastMessage = &msg
		}
		// A dangling last-message pointer is tolerated.
	}
	return out, nil
}

func dedupeIDs(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// storeErr wraps persistence failures so callers can match ErrStoreUnavailable
// without losing the underlying cause. Domain sentinels pass through.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// notFoundOr passes ErrNotFound through and wraps anything else as a store
// failure.
func notFoundOr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return storeErr(op, err)
}

// nowUTC exists so time handling stays uniform across the package.
func nowUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
