package protocol

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{
		SenderID:          "1",
		SenderMobile:      "+10000000000",
		SenderDisplayName: "Alice",
		ReceiverID:        "2",
		MessageID:         "m1",
		ActualMessage:     "hi",
		Files:             map[string]string{"a.png": "YmFzZTY0"},
		MessageType:       MessageTypeChat,
		Delivered:         true,
		DeliveredAt:       1000,
		Read:              false,
		Timestamp:         999,
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Envelope
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestEnvelopeHasContent(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		want bool
	}{
		{"empty", Envelope{}, false},
		{"text only", Envelope{ActualMessage: "hi"}, true},
		{"file only", Envelope{Files: map[string]string{"a": "b"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.env.HasContent(); got != tc.want {
				t.Fatalf("HasContent() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCallSignalsContainsOffer(t *testing.T) {
	if !CallSignals[SignalCallOffer] {
		t.Fatal("CALL_OFFER must be a recognized signal")
	}
	if CallSignals["NOT_A_SIGNAL"] {
		t.Fatal("unrecognized signal must not be present")
	}
}
