package v1

import (
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "valid hello", env: Envelope{V: Version, Type: TypeHello}},
		{name: "valid message_send", env: Envelope{V: Version, Type: TypeMessageSend, ID: "e1", TS: time.Now()}},
		{name: "missing version", env: Envelope{Type: TypeHello}, wantErr: true},
		{name: "wrong version", env: Envelope{V: "v2", Type: TypeHello}, wantErr: true},
		{name: "missing type", env: Envelope{V: Version}, wantErr: true},
		{name: "unknown type", env: Envelope{V: Version, Type: "conversation_join"}, wantErr: true},
		{name: "whitespace type", env: Envelope{V: Version, Type: "   "}, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.env.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate()=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestEnvelopeValidate_AcceptsEveryKnownType(t *testing.T) {
	t.Parallel()

	types := []string{
		TypeHello, TypeHelloAck,
		TypeMessageSend, TypeMessageAck, TypeMessageNew,
		TypeThreadOpen, TypeMessageSeen, TypeUnseenCount,
		TypeHistoryFetch, TypeHistoryChunk,
		TypePresence, TypeError,
	}
	for _, typ := range types {
		env := Envelope{V: Version, Type: typ}
		if err := env.Validate(); err != nil {
			t.Fatalf("Validate(%q)=%v want=nil", typ, err)
		}
	}
}
