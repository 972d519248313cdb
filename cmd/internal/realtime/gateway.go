// Package realtime contains TalkDesk's websocket gateway and the connection
// table that turns core push decisions into delivered envelopes.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Sksingh0007/TalkDesk/cmd/internal/chat"
	"github.com/Sksingh0007/TalkDesk/cmd/internal/ids"
	"github.com/Sksingh0007/TalkDesk/cmd/internal/metrics"
	"github.com/Sksingh0007/TalkDesk/cmd/internal/presence"
	v1 "github.com/Sksingh0007/TalkDesk/shared/contracts/chat/v1"
)

const (
	wsSubprotocolV1 = "talkdesk.chat.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsDefaultHistoryLimit = 50
	wsMaxHistoryLimit     = 200

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Gateway is the websocket entrypoint for TalkDesk realtime.
//
// It enforces origin policy, subprotocol selection, rate limits, and
// heartbeats, registers each connection with the presence registry and the
// connection table, and routes validated envelopes to the chat core. The
// authenticated user identity arrives with the request (query parameter or
// header set by the identity collaborator); the gateway never validates
// credentials itself.
type Gateway struct {
	log      *slog.Logger
	registry *presence.Registry
	table    *ConnTable
	fanout   *chat.Fanout
	tracker  *chat.Tracker

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, reg *presence.Registry, table *ConnTable, fanout *chat.Fanout, tracker *chat.Tracker) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &Gateway{log: log, registry: reg, table: table, fanout: fanout, tracker: tracker}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("TALKDESK_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("TALKDESK_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("TALKDESK_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("TALKDESK_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("TALKDESK_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("TALKDESK_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("TALKDESK_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("TALKDESK_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("TALKDESK_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("TALKDESK_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket session and runs the realtime loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	userID := callerIdentity(r)
	if userID == "" {
		g.log.Info("ws.reject.identity", "remote", r.RemoteAddr)
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wsSubprotocolV1},

		// Authorize allowed origin hosts (e.g. localhost) for cross-origin requests.
		OriginPatterns: g.originPatterns,

		// Dev-only escape hatch.
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connID, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.conn_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "id allocation failed")
		return
	}
	client := NewClient(userID, connID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.table.Add(client)
	wentOnline := g.registry.RegisterConnection(userID, connID)
	if wentOnline {
		g.log.Info("presence.online", "user_id", userID)
	}
	g.broadcastPresence(ctx)

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Push safety: client.Send remains open and table removal happens before client.Close.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.table.Remove(connID)
			wentOffline := g.registry.UnregisterConnection(userID, connID)
			if wentOffline {
				g.log.Info("presence.offline", "user_id", userID)
			}
			g.broadcastPresence(context.WithoutCancel(ctx))

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeHello:
			if err := g.onHello(ctx, client, env); err != nil {
				g.trySendError(ctx, client, "hello_failed", err.Error())
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}

		case v1.TypeMessageSend:
			if err := g.onMessageSend(ctx, client, env, now); err != nil {
				g.sendDomainError(ctx, client, err)
				continue readLoop
			}

		case v1.TypeThreadOpen:
			if err := g.onThreadOpen(ctx, client, env); err != nil {
				g.sendDomainError(ctx, client, err)
				continue readLoop
			}

		case v1.TypeMessageSeen:
			if err := g.onMessageSeen(ctx, client, env); err != nil {
				g.sendDomainError(ctx, client, err)
				continue readLoop
			}

		case v1.TypeHistoryFetch:
			if err := g.onHistoryFetch(ctx, client, env); err != nil {
				g.sendDomainError(ctx, client, err)
				continue readLoop
			}

		default:
			g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// broadcastPresence pushes the full online-user snapshot to every open
// connection system-wide. This deliberately mirrors the global broadcast the
// product shipped with; scoping to contacts is a possible optimization that
// must still let every client learn of every transition.
func (g *Gateway) broadcastPresence(ctx context.Context) {
	online := g.registry.ListOnlineUsers()
	metrics.OnlineUsers.Set(float64(len(online)))
	g.table.PushPresence(ctx, g.registry.AllConnections(), online)
}

// ---- handlers ----

func (g *Gateway) onHello(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.HelloPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	ackPayload, _ := json.Marshal(v1.HelloAckPayload{ConnID: client.ConnID, UserID: client.UserID})
	ack := NewEnvelope(v1.TypeHelloAck, ackPayload, time.Now().UTC())
	if !g.enqueue(ctx, client, ack) {
		return errors.New("backpressure: hello.ack")
	}

	// Seed the new session with its current unread state so the client does
	// not need a separate fetch round trip.
	counts, err := g.tracker.UnseenCountsForUser(ctx, client.UserID)
	if err != nil {
		g.log.Warn("ws.hello.unseen.fail", "user_id", client.UserID, "err", err)
		return nil
	}
	g.table.PushUnseenCounts(ctx, []string{client.ConnID}, counts)
	return nil
}

func (g *Gateway) onMessageSend(ctx context.Context, client *Client, env v1.Envelope, now time.Time) error {
	var p v1.MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	toUser := strings.TrimSpace(p.ToUserID)
	convID := strings.TrimSpace(p.ConversationID)
	if (toUser == "") == (convID == "") {
		return errors.New("exactly one of to_user_id / conversation_id required")
	}

	in := chat.SendInput{
		SenderID: client.UserID,
		Payload:  chat.Payload{Text: p.Text, Image: p.Image},
		Now:      now,
	}

	var (
		msg chat.Message
		err error
	)
	if toUser != "" {
		msg, err = g.fanout.SendDirect(ctx, toUser, in)
	} else {
		msg, err = g.fanout.SendToConversation(ctx, convID, in)
	}
	if err != nil {
		return err
	}

	ackPayload, _ := json.Marshal(v1.MessageAckPayload{
		MessageID:      msg.ID,
		ConversationID: msg.Target.ConversationID(),
	})
	if !g.enqueue(ctx, client, NewEnvelope(v1.TypeMessageAck, ackPayload, now)) {
		return errors.New("backpressure: ack")
	}
	return nil
}

func (g *Gateway) onThreadOpen(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.ThreadOpenPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	peerID := strings.TrimSpace(p.PeerID)
	convID := strings.TrimSpace(p.ConversationID)
	if (peerID == "") == (convID == "") {
		return errors.New("exactly one of peer_id / conversation_id required")
	}

	if peerID != "" {
		if err := g.openDirectThread(ctx, client.UserID, peerID); err != nil {
			return err
		}
	} else {
		if err := g.tracker.MarkConversationThreadSeen(ctx, client.UserID, convID); err != nil {
			return err
		}
	}

	// Refresh the reader's own sessions too, so unread badges converge on
	// every device.
	counts, err := g.tracker.UnseenCountsForUser(ctx, client.UserID)
	if err != nil {
		g.log.Warn("ws.thread_open.unseen.fail", "user_id", client.UserID, "err", err)
		return nil
	}
	g.table.PushUnseenCounts(ctx, g.registry.ConnectionsFor(client.UserID), counts)
	return nil
}

// openDirectThread reconciles both addressing schemes for a direct thread:
// the legacy half flips seen flags and notifies the peer, the
// conversation-mode half appends SeenBy entries when the implicit direct
// conversation exists.
func (g *Gateway) openDirectThread(ctx context.Context, readerID, peerID string) error {
	if _, err := g.tracker.MarkDirectThreadSeen(ctx, readerID, peerID); err != nil {
		return err
	}

	conv, err := g.fanout.DirectConversation(ctx, readerID, peerID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil
		}
		return err
	}
	return g.tracker.MarkConversationThreadSeen(ctx, readerID, conv.ID)
}

// onMessageSeen marks individual messages seen. ReaderID in the payload is
// ignored; the connection identity is authoritative.
func (g *Gateway) onMessageSeen(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.MessageSeenPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if len(p.MessageIDs) == 0 {
		return errors.New("message_ids required")
	}

	for _, id := range p.MessageIDs {
		if err := g.tracker.MarkMessageSeen(ctx, client.UserID, strings.TrimSpace(id)); err != nil {
			return err
		}
	}

	counts, err := g.tracker.UnseenCountsForUser(ctx, client.UserID)
	if err != nil {
		g.log.Warn("ws.message_seen.unseen.fail", "user_id", client.UserID, "err", err)
		return nil
	}
	g.table.PushUnseenCounts(ctx, g.registry.ConnectionsFor(client.UserID), counts)
	return nil
}

func (g *Gateway) onHistoryFetch(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.HistoryFetchPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	peerID := strings.TrimSpace(p.PeerID)
	convID := strings.TrimSpace(p.ConversationID)
	if (peerID == "") == (convID == "") {
		return errors.New("exactly one of peer_id / conversation_id required")
	}

	limit := p.Limit
	if limit <= 0 {
		limit = wsDefaultHistoryLimit
	}
	if limit > wsMaxHistoryLimit {
		limit = wsMaxHistoryLimit
	}

	var (
		msgs []chat.Message
		err  error
	)
	if peerID != "" {
		msgs, err = g.tracker.DirectThread(ctx, client.UserID, peerID)
	} else {
		msgs, err = g.tracker.ConversationThread(ctx, client.UserID, convID)
	}
	if err != nil {
		return err
	}

	// Tail window: the most recent messages, still in creation order.
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]v1.MessageNewPayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messagePayload(m))
	}
	chunkPayload, _ := json.Marshal(v1.HistoryChunkPayload{
		PeerID:         peerID,
		ConversationID: convID,
		Messages:       out,
	})
	if !g.enqueue(ctx, client, NewEnvelope(v1.TypeHistoryChunk, chunkPayload, time.Now().UTC())) {
		return errors.New("backpressure: history chunk")
	}
	return nil
}

// ---- send helpers ----

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env := NewEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = g.enqueue(ctx, client, env)
}

// sendDomainError maps chat sentinel errors onto wire-stable codes.
func (g *Gateway) sendDomainError(ctx context.Context, client *Client, err error) {
	code := "internal"
	switch {
	case errors.Is(err, chat.ErrNotParticipant):
		code = "not_participant"
	case errors.Is(err, chat.ErrNotAdmin):
		code = "not_admin"
	case errors.Is(err, chat.ErrAlreadyMember):
		code = "already_member"
	case errors.Is(err, chat.ErrNotMember):
		code = "not_member"
	case errors.Is(err, chat.ErrCannotRemoveAdmin):
		code = "cannot_remove_admin"
	case errors.Is(err, chat.ErrBelowMinimumSize):
		code = "below_minimum_size"
	case errors.Is(err, chat.ErrInvalidGroupSize):
		code = "invalid_group_size"
	case errors.Is(err, chat.ErrNotFound):
		code = "not_found"
	case errors.Is(err, chat.ErrInvalidInput):
		code = "invalid_input"
	case errors.Is(err, chat.ErrStoreUnavailable):
		code = "store_unavailable"
	}
	g.trySendError(ctx, client, code, err.Error())
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- identity ----

// callerIdentity extracts the authenticated user id attached to the request
// by the identity collaborator (reverse proxy header or handshake query).
func callerIdentity(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-User-ID")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

// ---- envelope IO ----

// NewEnvelope wraps a payload in a canonical envelope with a fresh id.
func NewEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
