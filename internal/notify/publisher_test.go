package notify

import (
	"context"
	"testing"

	kafka "github.com/segmentio/kafka-go"

	"chatgate/internal/protocol"
)

type fakeWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errBoom
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

var errBoom = &writeError{"boom"}

type writeError struct{ msg string }

func (e *writeError) Error() string { return e.msg }

func TestPublishSampleKeyedByReceiver(t *testing.T) {
	sample := &fakeWriter{}
	p := newWithWriters(sample, &fakeWriter{})

	p.PublishSample(context.Background(), protocol.SampleNotification{ReceiverID: "2", Message: "hi"})

	if len(sample.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(sample.msgs))
	}
	if string(sample.msgs[0].Key) != "2" {
		t.Errorf("Key = %q, want 2", sample.msgs[0].Key)
	}
}

func TestPublishOfflineFailureDoesNotPanic(t *testing.T) {
	offline := &fakeWriter{fail: true}
	p := newWithWriters(&fakeWriter{}, offline)

	// Must not panic and must not return an error to the caller.
	p.PublishOffline(context.Background(), protocol.OfflineNotification{CustomerID: 2, Channel: protocol.ChannelSMS})
}

func TestPublishOfflineKeyedByRawReceiverID(t *testing.T) {
	offline := &fakeWriter{}
	p := newWithWriters(&fakeWriter{}, offline)

	p.PublishOffline(context.Background(), protocol.OfflineNotification{
		CustomerID: 0, Channel: protocol.ChannelSMS, ReceiverID: "customer-42",
	})

	if len(offline.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(offline.msgs))
	}
	if want := "undelivered:customer-42"; string(offline.msgs[0].Key) != want {
		t.Errorf("Key = %q, want %q", offline.msgs[0].Key, want)
	}
}

func TestCustomerIDFromRaw(t *testing.T) {
	cases := map[string]int64{
		"123":       123,
		"":          0,
		"not-a-num": 0,
		"-5":        -5,
	}
	for raw, want := range cases {
		if got := CustomerIDFromRaw(raw); got != want {
			t.Errorf("CustomerIDFromRaw(%q) = %d, want %d", raw, got, want)
		}
	}
}
