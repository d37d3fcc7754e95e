package router

import (
	"context"
	"errors"
	"testing"

	"chatgate/internal/profile"
	"chatgate/internal/protocol"
)

type fakeSocket struct {
	sent []any
	fail bool
}

func (f *fakeSocket) Send(v any) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, v)
	return nil
}

type fakeSessions struct {
	byUser map[string]*fakeSocket
}

func (f *fakeSessions) Get(userID string) (Socket, bool) {
	s, ok := f.byUser[userID]
	if !ok {
		return nil, false
	}
	return s, true
}

type fakePresence struct {
	pods map[string]string
}

func (f *fakePresence) Lookup(_ context.Context, userID string) (string, bool) {
	p, ok := f.pods[userID]
	return p, ok
}

type fakeRelay struct {
	published []protocol.RelayPayload
}

func (f *fakeRelay) Publish(_ context.Context, payload protocol.RelayPayload) {
	f.published = append(f.published, payload)
}

type fakeStore struct {
	stored map[string]protocol.Envelope
	fail   bool
}

func (f *fakeStore) Store(_ context.Context, receiverID string, env protocol.Envelope) error {
	if f.fail {
		return errors.New("store failed")
	}
	if f.stored == nil {
		f.stored = make(map[string]protocol.Envelope)
	}
	f.stored[receiverID] = env
	return nil
}

type fakeNotifier struct {
	samples  []protocol.SampleNotification
	offlines []protocol.OfflineNotification
}

func (f *fakeNotifier) PublishSample(_ context.Context, n protocol.SampleNotification) {
	f.samples = append(f.samples, n)
}

func (f *fakeNotifier) PublishOffline(_ context.Context, n protocol.OfflineNotification) {
	f.offlines = append(f.offlines, n)
}

type fakeLoader struct{ fail bool }

func (f *fakeLoader) LoadProfile(_ context.Context, customerID string) (profile.Profile, error) {
	if f.fail {
		return profile.Profile{}, errors.New("profile load failed")
	}
	return profile.Profile{DisplayName: "Alice", Mobile: "+1"}, nil
}

func newTestRouter(t *testing.T, sessions map[string]*fakeSocket, pods map[string]string, loaderFails bool) (*Router, *fakeRelay, *fakeStore, *fakeNotifier) {
	t.Helper()
	cache, err := profile.New(&fakeLoader{fail: loaderFails}, 10, 2)
	if err != nil {
		t.Fatalf("profile.New: %v", err)
	}
	relay := &fakeRelay{}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	opts := Options{
		PodName:                          "p1",
		OfflineMessagingEnabled:          true,
		OfflineMessageStorageEnabled:     true,
		OfflineKafkaNotificationsEnabled: true,
		OfflineNotificationChannel:       protocol.ChannelSMS,
	}
	r := New(&fakeSessions{byUser: sessions}, &fakePresence{pods: pods}, relay, store, notifier, cache, opts)
	return r, relay, store, notifier
}

func TestRouteChatLocalDelivery(t *testing.T) {
	sock := &fakeSocket{}
	r, relay, store, _ := newTestRouter(t, map[string]*fakeSocket{"2": sock}, nil, false)

	got := r.RouteChat(context.Background(), protocol.ChatRequest{SenderID: "1", ReceiverID: "2", MessageID: "m1", ActualMessage: "hi", Timestamp: 1000})

	if got != Delivered {
		t.Fatalf("Outcome = %v, want Delivered", got)
	}
	if len(sock.sent) != 1 {
		t.Fatalf("sock received %d messages, want 1", len(sock.sent))
	}
	env := sock.sent[0].(protocol.Envelope)
	if !env.Delivered || env.SenderDisplayName != "Alice" {
		t.Errorf("envelope = %+v", env)
	}
	if len(relay.published) != 0 || len(store.stored) != 0 {
		t.Error("local delivery must not touch relay or store")
	}
}

func TestRouteChatCrossPodRelay(t *testing.T) {
	r, relay, store, _ := newTestRouter(t, nil, map[string]string{"2": "p2"}, false)

	got := r.RouteChat(context.Background(), protocol.ChatRequest{SenderID: "1", ReceiverID: "2", MessageID: "m1", ActualMessage: "hi"})

	if got != Queued {
		t.Fatalf("Outcome = %v, want Queued", got)
	}
	if len(relay.published) != 1 {
		t.Fatalf("published %d relay messages, want 1", len(relay.published))
	}
	if len(store.stored) != 0 {
		t.Error("cross-pod relay must not touch the undelivered store")
	}
}

func TestRouteChatOfflineStoreAndNotify(t *testing.T) {
	r, _, store, notifier := newTestRouter(t, nil, nil, false)

	got := r.RouteChat(context.Background(), protocol.ChatRequest{
		SenderID: "1", ReceiverID: "2", MessageID: "m1",
		ActualMessage: "hi", SampleMessage: "you have a message",
	})

	if got != Queued {
		t.Fatalf("Outcome = %v, want Queued", got)
	}
	if _, ok := store.stored["2"]; !ok {
		t.Fatal("expected message stored under receiver 2")
	}
	if len(notifier.offlines) != 1 {
		t.Fatalf("offline notifications = %d, want 1", len(notifier.offlines))
	}
	if notifier.offlines[0].CustomerID != 2 {
		t.Errorf("CustomerID = %d, want 2", notifier.offlines[0].CustomerID)
	}
}

func TestRouteChatDropsOnProfileFailure(t *testing.T) {
	r, _, store, notifier := newTestRouter(t, nil, nil, true)

	got := r.RouteChat(context.Background(), protocol.ChatRequest{SenderID: "1", ReceiverID: "2", MessageID: "m1", ActualMessage: "hi"})

	if got != Dropped {
		t.Fatalf("Outcome = %v, want Dropped", got)
	}
	if len(store.stored) != 0 || len(notifier.offlines) != 0 {
		t.Error("profile failure must drop before any side effect")
	}
}

func TestRouteChatDropsEmptyContent(t *testing.T) {
	r, _, store, notifier := newTestRouter(t, nil, nil, false)

	got := r.RouteChat(context.Background(), protocol.ChatRequest{SenderID: "1", ReceiverID: "2", MessageID: "m1"})

	if got != Dropped {
		t.Fatalf("Outcome = %v, want Dropped", got)
	}
	if len(store.stored) != 0 || len(notifier.offlines) != 0 {
		t.Error("empty content must drop with no side effects")
	}
}

func TestRouteChatSampleOnlyPublishesNotificationWithoutStoring(t *testing.T) {
	r, _, store, notifier := newTestRouter(t, nil, nil, false)

	got := r.RouteChat(context.Background(), protocol.ChatRequest{SenderID: "1", ReceiverID: "2", MessageID: "m1", SampleMessage: "ping"})

	if got != Dropped {
		t.Fatalf("Outcome = %v, want Dropped (no actualMessage/files)", got)
	}
	if len(notifier.samples) != 1 {
		t.Fatalf("sample notifications = %d, want 1", len(notifier.samples))
	}
	if len(store.stored) != 0 {
		t.Error("sample-only message must not be stored")
	}
}

func TestRouteHTTPOfflineReturnsDropped(t *testing.T) {
	r, _, store, _ := newTestRouter(t, nil, nil, false)

	got := r.RouteHTTP(context.Background(), protocol.Envelope{SenderID: "1", ReceiverID: "2", MessageID: "m1", ActualMessage: "hi"})

	if got != Dropped {
		t.Fatalf("Outcome = %v, want Dropped (HTTP path never falls through to offline store)", got)
	}
	if len(store.stored) != 0 {
		t.Error("HTTP path must never store offline")
	}
}

func TestRouteChatLocalSendFailureReturnsFailed(t *testing.T) {
	sock := &fakeSocket{fail: true}
	r, _, store, _ := newTestRouter(t, map[string]*fakeSocket{"2": sock}, nil, false)

	got := r.RouteChat(context.Background(), protocol.ChatRequest{SenderID: "1", ReceiverID: "2", MessageID: "m1", ActualMessage: "hi"})

	if got != Failed {
		t.Fatalf("Outcome = %v, want Failed", got)
	}
	if len(store.stored) != 0 {
		t.Error("a local send failure must not fall through to the offline store")
	}
}

func TestRouteHTTPLocalDelivery(t *testing.T) {
	sock := &fakeSocket{}
	r, _, _, _ := newTestRouter(t, map[string]*fakeSocket{"2": sock}, nil, false)

	got := r.RouteHTTP(context.Background(), protocol.Envelope{SenderID: "1", ReceiverID: "2", MessageID: "m1", ActualMessage: "hi"})

	if got != Delivered {
		t.Fatalf("Outcome = %v, want Delivered", got)
	}
}

func TestRouteHTTPLocalSendFailureReturnsFailed(t *testing.T) {
	sock := &fakeSocket{fail: true}
	r, _, _, _ := newTestRouter(t, map[string]*fakeSocket{"2": sock}, nil, false)

	got := r.RouteHTTP(context.Background(), protocol.Envelope{SenderID: "1", ReceiverID: "2", MessageID: "m1", ActualMessage: "hi"})

	if got != Failed {
		t.Fatalf("Outcome = %v, want Failed (distinct from an offline receiver)", got)
	}
}

func TestSendLocalOrRelayNeverStoresOffline(t *testing.T) {
	r, relay, store, _ := newTestRouter(t, nil, nil, false)

	got := r.SendLocalOrRelay(context.Background(), "2", protocol.OutboundSignal{Signal: protocol.SignalCallOffer})

	if got != Dropped {
		t.Fatalf("Outcome = %v, want Dropped", got)
	}
	if len(relay.published) != 0 || len(store.stored) != 0 {
		t.Error("offline signal target must not relay or store")
	}
}

func TestOfflineMessagingDisabledDrops(t *testing.T) {
	cache, _ := profile.New(&fakeLoader{}, 10, 2)
	opts := Options{PodName: "p1", OfflineMessagingEnabled: false}
	r := New(&fakeSessions{}, &fakePresence{}, &fakeRelay{}, &fakeStore{}, &fakeNotifier{}, cache, opts)

	got := r.RouteChat(context.Background(), protocol.ChatRequest{SenderID: "1", ReceiverID: "2", MessageID: "m1", ActualMessage: "hi"})
	if got != Dropped {
		t.Fatalf("Outcome = %v, want Dropped when offline messaging is disabled", got)
	}
}
