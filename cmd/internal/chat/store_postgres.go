package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sksingh0007/TalkDesk/cmd/internal/ids"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "talkdesk").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "talkdesk",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

const userColumns = `id, full_name, username, email, profile_pic, bio, friends, friend_requests`

// GetUser returns the user or ErrNotFound.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := s.check(ctx); err != nil {
		return User{}, err
	}
	users := pgIdent(s.schema, "users")

	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM `+users+` WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUsers resolves a batch of ids, skipping unknown ids.
func (s *PostgresStore) GetUsers(ctx context.Context, userIDs []string) ([]User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, nil
	}
	users := pgIdent(s.schema, "users")

	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE id = ANY($1) ORDER BY id`,
		userIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const conversationColumns = `id, participants, is_group, group_admins, group_name, group_image, last_message_id, created_at, updated_at`

// GetConversation returns the conversation or ErrNotFound.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if err := s.check(ctx); err != nil {
		return Conversation{}, err
	}
	conversations := pgIdent(s.schema, "conversations")

	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM `+conversations+` WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// FindDirectConversation looks up the non-group conversation for {a, b}.
func (s *PostgresStore) FindDirectConversation(ctx context.Context, a, b string) (Conversation, error) {
	if err := s.check(ctx); err != nil {
		return Conversation{}, err
	}
	conversations := pgIdent(s.schema, "conversations")

	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+`
		   FROM `+conversations+`
		  WHERE is_group = false
		    AND participants @> ARRAY[$1, $2]::text[]
		    AND cardinality(participants) = 2
		  ORDER BY created_at
		  LIMIT 1`,
		a, b,
	)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// ListConversationsForUser returns the user's conversations, most recently
// updated first.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	conversations := pgIdent(s.schema, "conversations")

	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+`
		   FROM `+conversations+`
		  WHERE $1 = ANY(participants)
		  ORDER BY updated_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertConversation persists a new conversation.
func (s *PostgresStore) InsertConversation(ctx context.Context, c Conversation) (Conversation, error) {
	if err := s.check(ctx); err != nil {
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

	conversations := pgIdent(s.schema, "conversations")
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+conversations+` (
		     id, participants, is_group, group_admins, group_name, group_image, last_message_id, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		c.ID, c.Participants, c.IsGroup, c.GroupAdmins, c.GroupName, c.GroupImage, c.LastMessageID, c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// UpdateConversation applies a partial update by id and returns the refreshed
// record.
func (s *PostgresStore) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (Conversation, error) {
	if err := s.check(ctx); err != nil {
		return Conversation{}, err
	}

	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	conversations := pgIdent(s.schema, "conversations")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+conversations+`
		    SET participants    = COALESCE($2::text[], participants),
		        group_admins    = COALESCE($3::text[], group_admins),
		        group_name      = COALESCE($4, group_name),
		        group_image     = COALESCE($5, group_image),
		        last_message_id = COALESCE($6, last_message_id),
		        updated_at      = $7
		  WHERE id = $1
		RETURNING `+conversationColumns,
		id,
		patch.Participants, patch.GroupAdmins,
		patch.GroupName, patch.GroupImage, patch.LastMessageID,
		updatedAt,
	)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

const messageColumns = `id, sender_id, receiver_id, conversation_id, text, image, seen, seen_by, created_at`

// GetMessage returns the message or ErrNotFound.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (Message, error) {
	if err := s.check(ctx); err != nil {
		return Message{}, err
	}
	messages := pgIdent(s.schema, "messages")

	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM `+messages+` WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// InsertMessage persists a new message after target validation. Addressing
// exclusivity is also enforced by a table CHECK constraint.
func (s *PostgresStore) InsertMessage(ctx context.Context, m Message) (Message, error) {
	if err := s.check(ctx); err != nil {
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

	var receiverID, conversationID *string
	switch m.Target.Mode() {
	case TargetDirect:
		v := m.Target.ReceiverID()
		receiverID = &v
	case TargetConversation:
		v := m.Target.ConversationID()
		conversationID = &v
	}

	seenBy, err := marshalSeenBy(m.SeenBy)
	if err != nil {
		return Message{}, err
	}

	messages := pgIdent(s.schema, "messages")
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (
		     id, sender_id, receiver_id, conversation_id, text, image, seen, seen_by, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.SenderID, receiverID, conversationID, m.Text, m.Image, m.Seen, seenBy, m.CreatedAt,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// ListDirectThread returns legacy messages between a and b in creation order.
func (s *PostgresStore) ListDirectThread(ctx context.Context, a, b string) ([]Message, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+`
		   FROM `+messages+`
		  WHERE (sender_id = $1 AND receiver_id = $2)
		     OR (sender_id = $2 AND receiver_id = $1)
		  ORDER BY created_at, id`,
		a, b,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListConversationThread returns conversation-mode messages in creation order.
func (s *PostgresStore) ListConversationThread(ctx context.Context, conversationID string) ([]Message, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+`
		   FROM `+messages+`
		  WHERE conversation_id = $1
		  ORDER BY created_at, id`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// CountDirectUnseenBySender aggregates unseen legacy messages per sender.
func (s *PostgresStore) CountDirectUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT sender_id, count(*)
		   FROM `+messages+`
		  WHERE receiver_id = $1 AND seen = false
		  GROUP BY sender_id`,
		receiverID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var senderID string
		var n int64
		if err := rows.Scan(&senderID, &n); err != nil {
			return nil, err
		}
		counts[senderID] = int(n)
	}
	return counts, rows.Err()
}

// CountConversationUnseen counts messages in a conversation not yet seen by userID.
func (s *PostgresStore) CountConversationUnseen(ctx context.Context, conversationID, userID string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	messages := pgIdent(s.schema, "messages")

	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*)
		   FROM `+messages+`
		  WHERE conversation_id = $1
		    AND sender_id <> $2
		    AND NOT seen_by @> jsonb_build_array(jsonb_build_object('user_id', $2::text))`,
		conversationID, userID,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// MarkDirectSeen flips seen=true on unseen legacy messages sender -> receiver
// and returns the affected message ids.
func (s *PostgresStore) MarkDirectSeen(ctx context.Context, senderID, receiverID string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`UPDATE `+messages+`
		    SET seen = true
		  WHERE sender_id = $1 AND receiver_id = $2 AND seen = false
		RETURNING id`,
		senderID, receiverID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var affected []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		affected = append(affected, id)
	}
	return affected, rows.Err()
}

// MarkConversationSeen appends a SeenBy entry for readerID where absent.
// The jsonb containment predicate keeps this idempotent under retries.
func (s *PostgresStore) MarkConversationSeen(ctx context.Context, conversationID, readerID string, at time.Time) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	messages := pgIdent(s.schema, "messages")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET seen_by = seen_by || jsonb_build_array(
		          jsonb_build_object('user_id', $2::text, 'seen_at', to_jsonb($3::timestamptz))
		        )
		  WHERE conversation_id = $1
		    AND sender_id <> $2
		    AND NOT seen_by @> jsonb_build_array(jsonb_build_object('user_id', $2::text))`,
		conversationID, readerID, at,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// MarkMessageSeen flips the legacy seen flag on a single message.
func (s *PostgresStore) MarkMessageSeen(ctx context.Context, messageID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	messages := pgIdent(s.schema, "messages")

	tag, err := s.pool.Exec(ctx, `UPDATE `+messages+` SET seen = true WHERE id = $1`, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) check(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
	return ctx.Err()
}

// ---- row mapping ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var bio, profilePic *string
	if err := row.Scan(&u.ID, &u.FullName, &u.Username, &u.Email, &profilePic, &bio, &u.Friends, &u.FriendRequests); err != nil {
		return User{}, err
	}
	if profilePic != nil {
		u.ProfilePic = *profilePic
	}
	if bio != nil {
		u.Bio = *bio
	}
	return u, nil
}

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	var groupName, groupImage, lastMessageID *string
	if err := row.Scan(
		&c.ID, &c.Participants, &c.IsGroup, &c.GroupAdmins,
		&groupName, &groupImage, &lastMessageID,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return Conversation{}, err
	}
	if groupName != nil {
		c.GroupName = *groupName
	}
	if groupImage != nil {
		c.GroupImage = *groupImage
	}
	if lastMessageID != nil {
		c.LastMessageID = *lastMessageID
	}
	return c, nil
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var receiverID, conversationID, text, image *string
	var seenBy []byte
	if err := row.Scan(
		&m.ID, &m.SenderID, &receiverID, &conversationID,
		&text, &image, &m.Seen, &seenBy, &m.CreatedAt,
	); err != nil {
		return Message{}, err
	}
	if text != nil {
		m.Text = *text
	}
	if image != nil {
		m.Image = *image
	}

	switch {
	case receiverID != nil:
		m.Target = DirectTarget(*receiverID)
	case conversationID != nil:
		m.Target = ConversationTarget(*conversationID)
	default:
		return Message{}, errors.New("chat: message row has no target")
	}

	entries, err := unmarshalSeenBy(seenBy)
	if err != nil {
		return Message{}, err
	}
	m.SeenBy = entries
	return m, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type seenEntryJSON struct {
	UserID string    `json:"user_id"`
	SeenAt time.Time `json:"seen_at"`
}

func marshalSeenBy(entries []SeenEntry) ([]byte, error) {
	out := make([]seenEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, seenEntryJSON{UserID: e.UserID, SeenAt: e.SeenAt})
	}
	return json.Marshal(out)
}

func unmarshalSeenBy(raw []byte) ([]SeenEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var in []seenEntryJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode seen_by: %w", err)
	}
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]SeenEntry, 0, len(in))
	for _, e := range in {
		out = append(out, SeenEntry{UserID: e.UserID, SeenAt: e.SeenAt})
	}
	return out, nil
}

// ---- identifier quoting ----

var pgIdentRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent returns a schema-qualified, quoted identifier. Inputs must already
// satisfy pgIdentRe.
func pgIdent(schema, table string) string {
	return `"` + schema + `"."` + table + `"`
}
