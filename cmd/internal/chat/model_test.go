package chat

import "testing"

func TestMessageTargetValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		target  MessageTarget
		wantErr bool
	}{
		{name: "direct ok", target: DirectTarget("bob")},
		{name: "conversation ok", target: ConversationTarget("conv-1")},
		{name: "zero value", target: MessageTarget{}, wantErr: true},
		{name: "direct empty receiver", target: DirectTarget(""), wantErr: true},
		{name: "conversation empty id", target: ConversationTarget(""), wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.target.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate()=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestMessageTargetAccessors(t *testing.T) {
	t.Parallel()

	d := DirectTarget("bob")
	if d.Mode() != TargetDirect || d.ReceiverID() != "bob" || d.ConversationID() != "" {
		t.Fatalf("direct accessor mismatch: %+v", d)
	}

	c := ConversationTarget("conv-1")
	if c.Mode() != TargetConversation || c.ConversationID() != "conv-1" || c.ReceiverID() != "" {
		t.Fatalf("conversation accessor mismatch: %+v", c)
	}
}

func TestConversationHelpers(t *testing.T) {
	t.Parallel()

	c := Conversation{
		Participants: []string{"alice", "bob"},
		GroupAdmins:  []string{"alice"},
	}

	if !c.HasParticipant("alice") || c.HasParticipant("carol") {
		t.Fatalf("HasParticipant mismatch")
	}
	if !c.HasAdmin("alice") || c.HasAdmin("bob") {
		t.Fatalf("HasAdmin mismatch")
	}
	if got := c.OtherParticipant("alice"); got != "bob" {
		t.Fatalf("OtherParticipant(alice)=%q want=bob", got)
	}
	if got := c.OtherParticipant("bob"); got != "alice" {
		t.Fatalf("OtherParticipant(bob)=%q want=alice", got)
	}
}

func TestMessageSeenByUser(t *testing.T) {
	t.Parallel()

	m := Message{SeenBy: []SeenEntry{{UserID: "alice"}}}
	if !m.SeenByUser("alice") {
		t.Fatalf("alice should be in SeenBy")
	}
	if m.SeenByUser("bob") {
		t.Fatalf("bob should not be in SeenBy")
	}
}
