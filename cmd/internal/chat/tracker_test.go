package chat

import (
	"context"
	"errors"
	"testing"
)

func TestUnseenCounts_GroupedBySenderAndConversation(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	// Two legacy messages from alice, one from carol.
	mustSendDirect(t, fx, "alice", "bob", "one")
	mustSendDirect(t, fx, "alice", "bob", "two")
	mustSendDirect(t, fx, "carol", "bob", "three")

	// One group message bob has not read.
	g, err := fx.resolver.CreateGroup(ctx, GroupInput{CreatorID: "alice", ParticipantIDs: []string{"bob", "carol"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := fx.fanout.SendToConversation(ctx, g.ID, SendInput{SenderID: "carol", Payload: Payload{Text: "group msg"}}); err != nil {
		t.Fatalf("SendToConversation: %v", err)
	}

	counts, err := fx.tracker.UnseenCountsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("UnseenCountsForUser: %v", err)
	}
	if counts["alice"] != 2 {
		t.Fatalf("counts[alice]=%d want=2", counts["alice"])
	}
	if counts["carol"] != 1 {
		t.Fatalf("counts[carol]=%d want=1", counts["carol"])
	}
	if counts[g.ID] != 1 {
		t.Fatalf("counts[%s]=%d want=1", g.ID, counts[g.ID])
	}
}

func TestUnseenCounts_NeverCountsOwnMessages(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	mustSendDirect(t, fx, "alice", "bob", "to bob")

	g, err := fx.resolver.CreateGroup(ctx, GroupInput{CreatorID: "alice", ParticipantIDs: []string{"bob"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := fx.fanout.SendToConversation(ctx, g.ID, SendInput{SenderID: "alice", Payload: Payload{Text: "mine"}}); err != nil {
		t.Fatalf("SendToConversation: %v", err)
	}

	counts, err := fx.tracker.UnseenCountsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("UnseenCountsForUser: %v", err)
	}
	for key, n := range counts {
		if n != 0 {
			t.Fatalf("alice must have no unseen from her own sends: counts[%s]=%d", key, n)
		}
	}
}

func TestUnseenCounts_DirectConversationFoldsIntoPeerKey(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	// One legacy message plus one conversation-mode message in the same
	// direct thread must surface under a single peer key.
	mustSendDirect(t, fx, "alice", "bob", "legacy")

	conv, err := fx.fanout.DirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("DirectConversation: %v", err)
	}
	if _, err := fx.fanout.SendToConversation(ctx, conv.ID, SendInput{SenderID: "alice", Payload: Payload{Text: "modern"}}); err != nil {
		t.Fatalf("SendToConversation: %v", err)
	}

	counts, err := fx.tracker.UnseenCountsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("UnseenCountsForUser: %v", err)
	}
	if counts["alice"] != 2 {
		t.Fatalf("counts[alice]=%d want=2 (both schemes folded)", counts["alice"])
	}
	if _, ok := counts[conv.ID]; ok {
		t.Fatalf("direct conversation must not appear under its own id: %v", counts)
	}
}

func TestMarkDirectThreadSeen_OnlyAffectsOneDirection(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	fromAlice := mustSendDirect(t, fx, "alice", "bob", "a1")
	mustSendDirect(t, fx, "bob", "alice", "b1")
	mustSendDirect(t, fx, "carol", "bob", "c1")

	affected, err := fx.tracker.MarkDirectThreadSeen(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("MarkDirectThreadSeen: %v", err)
	}
	if len(affected) != 1 || affected[0] != fromAlice.ID {
		t.Fatalf("affected=%v want=[%s]", affected, fromAlice.ID)
	}

	// carol -> bob stays unseen, bob -> alice stays unseen.
	counts, err := fx.tracker.UnseenCountsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("UnseenCountsForUser(bob): %v", err)
	}
	if counts["alice"] != 0 || counts["carol"] != 1 {
		t.Fatalf("bob counts=%v want alice=0 carol=1", counts)
	}
	counts, err = fx.tracker.UnseenCountsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("UnseenCountsForUser(alice): %v", err)
	}
	if counts["bob"] != 1 {
		t.Fatalf("alice counts=%v want bob=1", counts)
	}
}

func TestMarkDirectThreadSeen_NotifiesPeerConnections(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	msg := mustSendDirect(t, fx, "alice", "bob", "read me")
	fx.registry.RegisterConnection("alice", "alice-1")

	affected, err := fx.tracker.MarkDirectThreadSeen(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("MarkDirectThreadSeen: %v", err)
	}
	if len(affected) != 1 {
		t.Fatalf("affected=%v want one id", affected)
	}

	if len(fx.pusher.seenAcks) != 1 {
		t.Fatalf("expected 1 seen ack, got %d", len(fx.pusher.seenAcks))
	}
	ack := fx.pusher.seenAcks[0]
	if ack.ReaderID != "bob" {
		t.Fatalf("ack reader=%q want=bob", ack.ReaderID)
	}
	if len(ack.MessageIDs) != 1 || ack.MessageIDs[0] != msg.ID {
		t.Fatalf("ack ids=%v want=[%s]", ack.MessageIDs, msg.ID)
	}

	if len(fx.pusher.counts) != 1 {
		t.Fatalf("expected 1 counts push, got %d", len(fx.pusher.counts))
	}
}

func TestMarkDirectThreadSeen_EmptyThreadIsNoopSuccess(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	fx.registry.RegisterConnection("alice", "alice-1")

	affected, err := fx.tracker.MarkDirectThreadSeen(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("MarkDirectThreadSeen: %v", err)
	}
	if affected != nil {
		t.Fatalf("affected=%v want=nil", affected)
	}
	if len(fx.pusher.seenAcks) != 0 || len(fx.pusher.counts) != 0 {
		t.Fatalf("no notification expected on no-op mark")
	}
}

func TestMarkConversationThreadSeen_Idempotent(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	g, err := fx.resolver.CreateGroup(ctx, GroupInput{CreatorID: "alice", ParticipantIDs: []string{"bob", "carol"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	msg, err := fx.fanout.SendToConversation(ctx, g.ID, SendInput{SenderID: "alice", Payload: Payload{Text: "read receipt"}})
	if err != nil {
		t.Fatalf("SendToConversation: %v", err)
	}

	if err := fx.tracker.MarkConversationThreadSeen(ctx, "bob", g.ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := fx.tracker.MarkConversationThreadSeen(ctx, "bob", g.ID); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	stored, err := fx.store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	entries := 0
	for _, e := range stored.SeenBy {
		if e.UserID == "bob" {
			entries++
		}
	}
	if entries != 1 {
		t.Fatalf("bob must appear exactly once in SeenBy, got %d (%+v)", entries, stored.SeenBy)
	}

	counts, err := fx.tracker.UnseenCountsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("UnseenCountsForUser: %v", err)
	}
	if counts[g.ID] != 0 {
		t.Fatalf("counts[%s]=%d want=0", g.ID, counts[g.ID])
	}
	// carol has not opened the thread.
	counts, err = fx.tracker.UnseenCountsForUser(ctx, "carol")
	if err != nil {
		t.Fatalf("UnseenCountsForUser(carol): %v", err)
	}
	if counts[g.ID] != 1 {
		t.Fatalf("carol counts[%s]=%d want=1", g.ID, counts[g.ID])
	}
}

func TestMarkConversationThreadSeen_NotParticipant(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	g, err := fx.resolver.CreateGroup(ctx, GroupInput{CreatorID: "alice", ParticipantIDs: []string{"bob"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := fx.tracker.MarkConversationThreadSeen(ctx, "carol", g.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("err=%v want=ErrNotParticipant", err)
	}
	if err := fx.tracker.MarkConversationThreadSeen(ctx, "carol", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want=ErrNotFound", err)
	}
}

func TestMarkMessageSeen(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()
	fx.registry.RegisterConnection("alice", "alice-1")

	msg := mustSendDirect(t, fx, "alice", "bob", "single")

	if err := fx.tracker.MarkMessageSeen(ctx, "bob", msg.ID); err != nil {
		t.Fatalf("MarkMessageSeen: %v", err)
	}
	stored, err := fx.store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !stored.Seen {
		t.Fatalf("message not flagged seen")
	}

	// The sender's open session gets a seen ack.
	if len(fx.pusher.seenAcks) != 1 {
		t.Fatalf("expected 1 seen ack, got %d", len(fx.pusher.seenAcks))
	}
	ack := fx.pusher.seenAcks[0]
	if ack.ReaderID != "bob" || len(ack.MessageIDs) != 1 || ack.MessageIDs[0] != msg.ID {
		t.Fatalf("ack=%+v", ack)
	}

	// Already seen is a no-op, not a second ack.
	if err := fx.tracker.MarkMessageSeen(ctx, "bob", msg.ID); err != nil {
		t.Fatalf("repeat MarkMessageSeen: %v", err)
	}
	if len(fx.pusher.seenAcks) != 1 {
		t.Fatalf("expected no additional ack, got %d", len(fx.pusher.seenAcks))
	}

	if err := fx.tracker.MarkMessageSeen(ctx, "bob", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want=ErrNotFound", err)
	}
}

func TestMarkMessageSeen_OnlyReceiverMayMark(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	msg := mustSendDirect(t, fx, "alice", "bob", "private")

	// Neither a bystander nor the sender may flip the flag.
	for _, reader := range []string{"carol", "alice"} {
		if err := fx.tracker.MarkMessageSeen(ctx, reader, msg.ID); !errors.Is(err, ErrNotParticipant) {
			t.Fatalf("reader=%s err=%v want=ErrNotParticipant", reader, err)
		}
	}

	stored, err := fx.store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if stored.Seen {
		t.Fatalf("message flagged seen by unauthorized reader")
	}
	counts, err := fx.tracker.UnseenCountsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("UnseenCountsForUser: %v", err)
	}
	if counts["alice"] != 1 {
		t.Fatalf("unseen count from alice=%d want=1", counts["alice"])
	}

	// The single-message marker applies to legacy messages only.
	g, err := fx.resolver.CreateGroup(ctx, GroupInput{
		CreatorID:      "alice",
		Name:           "trio",
		ParticipantIDs: []string{"bob", "carol"},
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	gm, err := fx.fanout.SendToConversation(ctx, g.ID, SendInput{
		SenderID: "alice",
		Payload:  Payload{Text: "group"},
	})
	if err != nil {
		t.Fatalf("SendToConversation: %v", err)
	}
	if err := fx.tracker.MarkMessageSeen(ctx, "bob", gm.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("conversation message err=%v want=ErrNotParticipant", err)
	}
}

func TestDirectThread_ReturnsHistoryAndMarksSeen(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	first := mustSendDirect(t, fx, "alice", "bob", "first")
	second := mustSendDirect(t, fx, "bob", "alice", "second")

	msgs, err := fx.tracker.DirectThread(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("DirectThread: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("history length=%d want=2", len(msgs))
	}
	if msgs[0].ID != first.ID || msgs[1].ID != second.ID {
		t.Fatalf("history out of order: %s, %s", msgs[0].ID, msgs[1].ID)
	}

	counts, err := fx.tracker.UnseenCountsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("UnseenCountsForUser: %v", err)
	}
	if counts["alice"] != 0 {
		t.Fatalf("opening the thread must clear unseen: %v", counts)
	}
}

func TestConversationThread_RequiresMembership(t *testing.T) {
	t.Parallel()

	fx := newFanoutFixture(t)
	ctx := context.Background()

	g, err := fx.resolver.CreateGroup(ctx, GroupInput{CreatorID: "alice", ParticipantIDs: []string{"bob"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := fx.fanout.SendToConversation(ctx, g.ID, SendInput{SenderID: "alice", Payload: Payload{Text: "hi"}}); err != nil {
		t.Fatalf("SendToConversation: %v", err)
	}

	if _, err := fx.tracker.ConversationThread(ctx, "carol", g.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("err=%v want=ErrNotParticipant", err)
	}

	msgs, err := fx.tracker.ConversationThread(ctx, "bob", g.ID)
	if err != nil {
		t.Fatalf("ConversationThread: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("history length=%d want=1", len(msgs))
	}

	counts, err := fx.tracker.UnseenCountsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("UnseenCountsForUser: %v", err)
	}
	if counts[g.ID] != 0 {
		t.Fatalf("opening the thread must clear unseen: %v", counts)
	}
}

func mustSendDirect(t *testing.T, fx *fanoutFixture, from, to, text string) Message {
	t.Helper()
	msg, err := fx.fanout.SendDirect(context.Background(), to, SendInput{
		SenderID: from,
		Payload:  Payload{Text: text},
	})
	if err != nil {
		t.Fatalf("SendDirect(%s -> %s): %v", from, to, err)
	}
	return msg
}
