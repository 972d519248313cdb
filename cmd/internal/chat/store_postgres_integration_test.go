package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when TALKDESK_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_DirectMessageRoundTrip(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyChatSchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	mustInsertTestUser(t, pool, schema, "alice")
	mustInsertTestUser(t, pool, schema, "bob")

	first, err := store.InsertMessage(ctx, Message{SenderID: "alice", Target: DirectTarget("bob"), Text: "one"})
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second, err := store.InsertMessage(ctx, Message{SenderID: "bob", Target: DirectTarget("alice"), Text: "two"})
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}

	msgs, err := store.ListDirectThread(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("list thread: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != first.ID || msgs[1].ID != second.ID {
		t.Fatalf("thread mismatch: %+v", msgs)
	}
	if msgs[0].Target.Mode() != TargetDirect || msgs[0].Target.ReceiverID() != "bob" {
		t.Fatalf("target not round-tripped: %+v", msgs[0].Target)
	}

	counts, err := store.CountDirectUnseenBySender(ctx, "bob")
	if err != nil {
		t.Fatalf("count unseen: %v", err)
	}
	if counts["alice"] != 1 {
		t.Fatalf("counts[alice]=%d want=1", counts["alice"])
	}

	affected, err := store.MarkDirectSeen(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if len(affected) != 1 || affected[0] != first.ID {
		t.Fatalf("affected=%v want=[%s]", affected, first.ID)
	}

	got, err := store.GetMessage(ctx, first.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if !got.Seen {
		t.Fatalf("seen flag not persisted")
	}

	// Second pass touches nothing.
	affected, err = store.MarkDirectSeen(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("mark seen again: %v", err)
	}
	if len(affected) != 0 {
		t.Fatalf("second mark affected %v want none", affected)
	}
}

func TestPostgresStore_ConversationLifecycle(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyChatSchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()

	if _, err := store.FindDirectConversation(ctx, "alice", "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("find before insert err=%v want=ErrNotFound", err)
	}

	direct, err := store.InsertConversation(ctx, Conversation{Participants: []string{"alice", "bob"}})
	if err != nil {
		t.Fatalf("insert direct: %v", err)
	}
	found, err := store.FindDirectConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("find direct: %v", err)
	}
	if found.ID != direct.ID {
		t.Fatalf("found=%q want=%q", found.ID, direct.ID)
	}

	group, err := store.InsertConversation(ctx, Conversation{
		Participants: []string{"alice", "bob", "carol"},
		IsGroup:      true,
		GroupAdmins:  []string{"alice"},
		GroupName:    "team",
	})
	if err != nil {
		t.Fatalf("insert group: %v", err)
	}

	// A three-member group must never satisfy the direct pair lookup.
	found, err = store.FindDirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("find direct after group: %v", err)
	}
	if found.ID != direct.ID {
		t.Fatalf("group leaked into direct lookup: %q", found.ID)
	}

	name := "renamed"
	participants := []string{"alice", "bob", "carol", "dave"}
	updated, err := store.UpdateConversation(ctx, group.ID, ConversationPatch{
		GroupName:    &name,
		Participants: &participants,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.GroupName != "renamed" || len(updated.Participants) != 4 {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if len(updated.GroupAdmins) != 1 {
		t.Fatalf("patch clobbered admins: %v", updated.GroupAdmins)
	}

	convs, err := store.ListConversationsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("conversations=%d want=2", len(convs))
	}
	if convs[0].ID != group.ID {
		t.Fatalf("most recently updated must come first: %q", convs[0].ID)
	}
}

func TestPostgresStore_ConversationSeenByIdempotent(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyChatSchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()

	conv, err := store.InsertConversation(ctx, Conversation{Participants: []string{"alice", "bob"}, IsGroup: true})
	if err != nil {
		t.Fatalf("insert conversation: %v", err)
	}

	now := time.Now().UTC()
	msg, err := store.InsertMessage(ctx, Message{
		SenderID: "alice",
		Target:   ConversationTarget(conv.ID),
		Text:     "receipt",
		SeenBy:   []SeenEntry{{UserID: "alice", SeenAt: now}},
	})
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}

	unseen, err := store.CountConversationUnseen(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("count unseen: %v", err)
	}
	if unseen != 1 {
		t.Fatalf("unseen=%d want=1", unseen)
	}

	n, err := store.MarkConversationSeen(ctx, conv.ID, "bob", now)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if n != 1 {
		t.Fatalf("first mark touched %d want=1", n)
	}
	n, err = store.MarkConversationSeen(ctx, conv.ID, "bob", now)
	if err != nil {
		t.Fatalf("mark again: %v", err)
	}
	if n != 0 {
		t.Fatalf("second mark touched %d want=0", n)
	}

	got, err := store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if len(got.SeenBy) != 2 || !got.SeenByUser("bob") || !got.SeenByUser("alice") {
		t.Fatalf("seen_by mismatch: %+v", got.SeenBy)
	}

	unseen, err = store.CountConversationUnseen(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("count unseen after mark: %v", err)
	}
	if unseen != 0 {
		t.Fatalf("unseen=%d want=0", unseen)
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("TALKDESK_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: TALKDESK_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse TALKDESK_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (TALKDESK_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "talkdesk_chat_it_" + strings.ToLower(ulid.Make().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplyChatSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	conversations := pgIdent(schema, "conversations")
	messages := pgIdent(schema, "messages")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL DEFAULT '',
  username TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  profile_pic TEXT NULL,
  bio TEXT NULL,
  friends TEXT[] NOT NULL DEFAULT '{}',
  friend_requests TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  participants TEXT[] NOT NULL,
  is_group BOOLEAN NOT NULL DEFAULT false,
  group_admins TEXT[] NOT NULL DEFAULT '{}',
  group_name TEXT NULL,
  group_image TEXT NULL,
  last_message_id TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT chk_conversations_min_participants CHECK (cardinality(participants) >= 2)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  sender_id TEXT NOT NULL,
  receiver_id TEXT NULL,
  conversation_id TEXT NULL,
  text TEXT NULL,
  image TEXT NULL,
  seen BOOLEAN NOT NULL DEFAULT false,
  seen_by JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT chk_messages_single_target CHECK ((receiver_id IS NOT NULL) <> (conversation_id IS NOT NULL))
);
`, users, conversations, messages)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func mustInsertTestUser(t *testing.T, pool *pgxpool.Pool, schema, id string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	if _, err := pool.Exec(ctx,
		`INSERT INTO `+users+` (id, full_name, username, email) VALUES ($1, $1, $1, $1 || '@test.local')`,
		id,
	); err != nil {
		t.Fatalf("insert user %q: %v", id, err)
	}
}
