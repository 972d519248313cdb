// Package main provides a CI-friendly WebSocket smoke test for TalkDesk realtime chat.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello/ack session establishment
//   - direct send -> ack
//   - message_new delivery to the receiver
//   - thread_open -> message_seen notification back to the sender
//   - history fetch returning the seen message
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/Sksingh0007/TalkDesk/shared/contracts/chat/v1"
)

const (
	defaultSubprotocol = "talkdesk.chat.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name   string
	userID string
	connID string
	conn   *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		userA   = flag.String("user-a", "smoke-alice", "Sender user id")
		userB   = flag.String("user-b", "smoke-bob", "Receiver user id")
		text    = flag.String("text", "hello talkdesk 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *userA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *userB, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s(%s) B=%s(%s) origin=%q\n", a.userID, a.connID, b.userID, b.connID, *origin)
	}

	mustSeePresenceIncluding(root, a, []string{*userA, *userB}, *timeout)

	messageID := mustSendDirectAndAssertAck(root, a, *userB, *text, *timeout)

	mustAssertNew(root, b, messageID, *userA, *userB, *text, *timeout)

	mustOpenThread(root, b, *userA, *timeout)

	mustAssertSeen(root, a, *userB, messageID, *timeout)

	mustHistoryContainsSeen(root, b, *userA, messageID, *text, *timeout)

	fmt.Printf("OK: A=%s B=%s message_id=%s\n", a.userID, b.userID, messageID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, userID string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("X-User-ID", userID)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:   name,
		userID: userID,
		conn:   conn,
		inbox:  make(chan v1.Envelope, 512),
		errCh:  make(chan error, 1),
	}
	c.startReadLoop()

	hello := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHello,
		ID:      fmt.Sprintf("%s-hello", name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.HelloPayload{}),
	}
	mustWriteWithTimeout(parent, c.conn, hello, stepTimeout)

	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello_ack payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.ConnID) == "" {
		fatalf("hello_ack missing conn_id (%s)", name)
	}
	if p.UserID != userID {
		fatalf("hello_ack user_id mismatch (%s): got=%q want=%q", name, p.UserID, userID)
	}
	c.connID = p.ConnID

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustSeePresenceIncluding(parent context.Context, c *smokeClient, users []string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypePresence, stepTimeout)

	var p v1.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal presence payload (%s): %v", c.name, err)
	}

	online := make(map[string]struct{}, len(p.Online))
	for _, u := range p.Online {
		online[u] = struct{}{}
	}
	for _, u := range users {
		if _, ok := online[u]; !ok {
			fatalf("presence missing user %q (%s): online=%v", u, c.name, p.Online)
		}
	}
}

func mustSendDirectAndAssertAck(parent context.Context, c *smokeClient, toUserID, text string, stepTimeout time.Duration) string {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeMessageSend,
		ID:   fmt.Sprintf("%s-send-%d", c.name, time.Now().UnixNano()),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.MessageSendPayload{
			ToUserID: toUserID,
			Text:     text,
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	ack := c.mustReadUntilType(parent, v1.TypeMessageAck, stepTimeout)

	var p v1.MessageAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal message_ack payload (%s): %v", c.name, err)
	}
	if strings.TrimSpace(p.MessageID) == "" {
		fatalf("message_ack missing message_id (%s)", c.name)
	}
	return p.MessageID
}

func mustAssertNew(parent context.Context, c *smokeClient, messageID, senderID, receiverID, text string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeMessageNew, stepTimeout)

	var p v1.MessageNewPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal message_new payload (%s): %v", c.name, err)
	}

	if p.MessageID != messageID {
		fatalf("message_new id mismatch (%s): got=%q want=%q", c.name, p.MessageID, messageID)
	}
	if p.SenderID != senderID {
		fatalf("message_new sender mismatch (%s): got=%q want=%q", c.name, p.SenderID, senderID)
	}
	if p.ReceiverID != receiverID {
		fatalf("message_new receiver mismatch (%s): got=%q want=%q", c.name, p.ReceiverID, receiverID)
	}
	if p.Text != text {
		fatalf("message_new text mismatch (%s): got=%q want=%q", c.name, p.Text, text)
	}
	if p.Seen {
		fatalf("message_new already seen (%s)", c.name)
	}
	if p.CreatedAt.IsZero() {
		fatalf("message_new created_at missing/zero (%s)", c.name)
	}
}

func mustOpenThread(parent context.Context, c *smokeClient, peerID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeThreadOpen,
		ID:   fmt.Sprintf("%s-thread-open", c.name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.ThreadOpenPayload{
			PeerID: peerID,
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	// The server refreshes the reader's own unseen counts after a mark.
	counts := c.mustReadUntilType(parent, v1.TypeUnseenCount, stepTimeout)

	var p v1.UnseenCountPayload
	if err := json.Unmarshal(counts.Payload, &p); err != nil {
		fatalf("unmarshal unseen_count payload (%s): %v", c.name, err)
	}
	if n := p.Counts[peerID]; n != 0 {
		fatalf("unseen count not cleared (%s): peer=%q count=%d", c.name, peerID, n)
	}
}

func mustAssertSeen(parent context.Context, c *smokeClient, readerID, messageID string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeMessageSeen, stepTimeout)

	var p v1.MessageSeenPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal message_seen payload (%s): %v", c.name, err)
	}
	if p.ReaderID != readerID {
		fatalf("message_seen reader mismatch (%s): got=%q want=%q", c.name, p.ReaderID, readerID)
	}
	for _, id := range p.MessageIDs {
		if id == messageID {
			return
		}
	}
	fatalf("message_seen missing message id %q (%s): got=%v", messageID, c.name, p.MessageIDs)
}

func mustHistoryContainsSeen(parent context.Context, c *smokeClient, peerID, messageID, text string, stepTimeout time.Duration) {
	req := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeHistoryFetch,
		ID:   fmt.Sprintf("%s-history-fetch", c.name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.HistoryFetchPayload{
			PeerID: peerID,
			Limit:  50,
		}),
	}
	mustWriteWithTimeout(parent, c.conn, req, stepTimeout)

	chunk := c.mustReadUntilType(parent, v1.TypeHistoryChunk, stepTimeout)

	var p v1.HistoryChunkPayload
	if err := json.Unmarshal(chunk.Payload, &p); err != nil {
		fatalf("unmarshal history_chunk payload (%s): %v", c.name, err)
	}
	if p.PeerID != peerID {
		fatalf("history_chunk peer mismatch (%s): got=%q want=%q", c.name, p.PeerID, peerID)
	}

	for _, m := range p.Messages {
		if m.MessageID == messageID {
			if m.Text != text {
				fatalf("history text mismatch (%s): got=%q want=%q", c.name, m.Text, text)
			}
			if !m.Seen {
				fatalf("history message not marked seen (%s): id=%q", c.name, messageID)
			}
			return
		}
	}
	fatalf("history_chunk missing expected message (%s)", c.name)
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			// Presence snapshots and count refreshes can interleave with any
			// step; skip whatever is not the awaited type.
			continue
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
