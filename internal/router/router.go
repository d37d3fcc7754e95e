// Package router implements the delivery router: the decision engine that
// chooses among local-socket send, cross-pod relay, or
// offline-store-and-notify for every outbound message. Call signaling
// depends on it through the Sink interface below rather than the two
// components referencing each other directly.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"chatgate/internal/metrics"
	"chatgate/internal/notify"
	"chatgate/internal/profile"
	"chatgate/internal/protocol"
)

// Outcome is the result of a routing decision.
type Outcome int

const (
	Dropped Outcome = iota
	Delivered
	Queued
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Queued:
		return "queued"
	case Failed:
		return "failed"
	default:
		return "dropped"
	}
}

// SessionTable is the subset of session.Table the router depends on.
type SessionTable interface {
	Get(userID string) (Socket, bool)
}

// Socket mirrors session.Socket without importing the session package, to
// keep this package's dependency graph acyclic and easy to fake in tests.
type Socket interface {
	Send(v any) error
}

// PresenceDirectory is the subset of presence.Directory the router depends on.
type PresenceDirectory interface {
	Lookup(ctx context.Context, userID string) (pod string, ok bool)
}

// RelayBus is the subset of relay.Bus the router depends on.
type RelayBus interface {
	Publish(ctx context.Context, payload protocol.RelayPayload)
}

// UndeliveredStore is the subset of undelivered.Store the router depends on.
type UndeliveredStore interface {
	Store(ctx context.Context, receiverID string, env protocol.Envelope) error
}

// Notifier is the subset of notify.Publisher the router depends on.
type Notifier interface {
	PublishSample(ctx context.Context, n protocol.SampleNotification)
	PublishOffline(ctx context.Context, n protocol.OfflineNotification)
}

// Options configures the independently-gated offline branch.
type Options struct {
	PodName                          string
	OfflineMessagingEnabled          bool
	OfflineMessageStorageEnabled     bool
	OfflineKafkaNotificationsEnabled bool
	OfflineNotificationChannel       string
}

// Sink is a narrow capability to send an already-built payload to a user,
// local or relayed, without the caller needing to know which. Call signaling
// depends on this interface instead of importing the router directly,
// avoiding a cyclic dependency between the two components.
type Sink interface {
	SendLocalOrRelay(ctx context.Context, receiverID string, payload any) Outcome
}

// Router is the delivery decision engine shared by the chat, HTTP, and
// call-signaling paths.
type Router struct {
	sessions  SessionTable
	presence  PresenceDirectory
	relay     RelayBus
	store     UndeliveredStore
	notifier  Notifier
	profiles  *profile.Cache
	opts      Options
}

// New constructs a Router from its dependencies.
func New(sessions SessionTable, presence PresenceDirectory, relay RelayBus, store UndeliveredStore, notifier Notifier, profiles *profile.Cache, opts Options) *Router {
	return &Router{sessions: sessions, presence: presence, relay: relay, store: store, notifier: notifier, profiles: profiles, opts: opts}
}

// RouteChat implements the websocket chat path: enrich the envelope with the
// sender's profile, fire the legacy sample/OTP notification, reject
// content-less messages, then deliver.
func (r *Router) RouteChat(ctx context.Context, req protocol.ChatRequest) Outcome {
	env := protocol.Envelope{
		SenderID:    req.SenderID,
		ReceiverID:  req.ReceiverID,
		MessageID:   req.MessageID,
		MessageType: protocol.MessageTypeChat,
		Timestamp:   req.Timestamp,
	}
	if len(req.Files) > 0 {
		env.MessageType = protocol.MessageTypeFile
	}
	env.ActualMessage = req.ActualMessage
	env.Files = req.Files

	// Step 1: enrich with the sender's profile. A load failure drops the
	// message with a warning rather than delivering it unenriched.
	if r.profiles != nil {
		p, ok := r.profiles.Load(ctx, req.SenderID)
		if !ok {
			slog.Warn("chat dropped: sender profile unavailable", "component", "router", "sender_id", req.SenderID, "message_id", req.MessageID)
			metrics.DeliveryOutcomes.WithLabelValues("chat", Dropped.String()).Inc()
			return Dropped
		}
		env.SenderDisplayName = p.DisplayName
		env.SenderMobile = p.Mobile
	}

	// Step 2: legacy sample/OTP notification, independent of delivery outcome.
	if req.SampleMessage != "" {
		r.notifier.PublishSample(ctx, protocol.SampleNotification{ReceiverID: req.ReceiverID, Message: req.SampleMessage})
	}

	// Step 3: reject content-less messages.
	if !env.HasContent() {
		slog.Debug("chat dropped: no content", "component", "router", "message_id", req.MessageID)
		metrics.DeliveryOutcomes.WithLabelValues("chat", Dropped.String()).Inc()
		return Dropped
	}

	outcome := r.deliver(ctx, env, req.SampleMessage, true)
	metrics.DeliveryOutcomes.WithLabelValues("chat", outcome.String()).Inc()
	return outcome
}

// RouteHTTP implements the HTTP send-message variant: enrichment is skipped
// (the caller supplies a pre-formed envelope) and the offline branch is
// never taken — an offline receiver returns Dropped so the HTTP endpoint can
// surface 404, distinct from a local delivery failure (Failed, 409).
func (r *Router) RouteHTTP(ctx context.Context, env protocol.Envelope) Outcome {
	if !env.HasContent() {
		metrics.DeliveryOutcomes.WithLabelValues("http", Dropped.String()).Inc()
		return Dropped
	}
	outcome := r.deliver(ctx, env, "", false)
	metrics.DeliveryOutcomes.WithLabelValues("http", outcome.String()).Inc()
	return outcome
}

// SendLocalOrRelay delivers an arbitrary payload (used for forwarded
// call-signaling frames) to a local socket or, failing that, across the
// relay bus. It never falls through to the offline store: call signaling
// has no offline semantics.
func (r *Router) SendLocalOrRelay(ctx context.Context, receiverID string, payload any) Outcome {
	if sock, ok := r.sessions.Get(receiverID); ok {
		if err := sock.Send(payload); err != nil {
			slog.Warn("local signal send failed", "component", "router", "receiver_id", receiverID, "err", err)
			return Failed
		}
		return Delivered
	}

	if pod, ok := r.presence.Lookup(ctx, receiverID); ok {
		raw, err := json.Marshal(payload)
		if err != nil {
			slog.Error("signal payload marshal failed", "component", "router", "err", err)
			return Dropped
		}
		r.relay.Publish(ctx, protocol.RelayPayload{TargetUserID: receiverID, Message: string(raw)})
		slog.Debug("relayed signal to remote pod", "component", "router", "receiver_id", receiverID, "pod", pod)
		return Queued
	}

	return Dropped
}

// deliver tries a local send, then relay to the receiver's pod, then falls
// back to offline store-and-notify.
func (r *Router) deliver(ctx context.Context, env protocol.Envelope, sampleMessage string, allowOffline bool) Outcome {
	if sock, ok := r.sessions.Get(env.ReceiverID); ok {
		sent := env
		sent.Delivered = true
		if err := sock.Send(sent); err != nil {
			slog.Warn("local send failed", "component", "router", "receiver_id", env.ReceiverID, "err", err)
			return Failed
		}
		return Delivered
	}

	if pod, ok := r.presence.Lookup(ctx, env.ReceiverID); ok {
		raw, err := json.Marshal(env)
		if err != nil {
			slog.Error("envelope marshal failed", "component", "router", "err", err)
			return Dropped
		}
		r.relay.Publish(ctx, protocol.RelayPayload{FromUserID: env.SenderID, TargetUserID: env.ReceiverID, Message: string(raw)})
		slog.Debug("relayed to remote pod", "component", "router", "receiver_id", env.ReceiverID, "pod", pod)
		return Queued
	}

	if !allowOffline || !r.opts.OfflineMessagingEnabled {
		return Dropped
	}

	if r.opts.OfflineMessageStorageEnabled {
		if err := r.store.Store(ctx, env.ReceiverID, env); err != nil {
			slog.Error("offline store failed", "component", "router", "receiver_id", env.ReceiverID, "err", err)
		} else {
			metrics.UndeliveredStored.Inc()
		}
	}
	if r.opts.OfflineKafkaNotificationsEnabled && sampleMessage != "" {
		r.notifier.PublishOffline(ctx, buildOfflineNotification(env, sampleMessage, r.opts.OfflineNotificationChannel))
	}
	return Queued
}

func buildOfflineNotification(env protocol.Envelope, sampleMessage, channel string) protocol.OfflineNotification {
	data := map[string]string{
		"senderMobile": env.SenderMobile,
		"senderId":     env.SenderID,
		"messageId":    env.MessageID,
	}
	if env.MessageType == protocol.MessageTypeChat {
		data["sampleMessage"] = sampleMessage
	} else {
		data["sampleMessage"] = "sent a file"
	}
	return protocol.OfflineNotification{
		CustomerID: notify.CustomerIDFromRaw(env.ReceiverID),
		Kind:       "undelivered-message",
		Channel:    channel,
		Data:       data,
		ReceiverID: env.ReceiverID,
	}
}
