// Package relay implements the cross-pod relay bus and its per-pod
// consumer: a single shared Redis pub/sub channel carrying serialized
// envelopes and call-signaling frames between pods.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"chatgate/internal/protocol"
)

// publisher is the narrow subset of redis.Cmdable the bus needs to publish.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// pubsub is the subset of *redis.PubSub the consumer loop needs; *redis.PubSub
// satisfies it structurally.
type pubsub interface {
	Channel() <-chan *redis.Message
	Close() error
}

// Bus publishes to, and consumes from, the shared relay channel.
type Bus struct {
	rdb       publisher
	subscribe func(ctx context.Context, channel string) pubsub
	channel   string
}

// New constructs a Bus backed by rdb, publishing/subscribing on channel.
func New(rdb *redis.Client, channel string) *Bus {
	return &Bus{
		rdb:     rdb,
		channel: channel,
		subscribe: func(ctx context.Context, channel string) pubsub {
			return rdb.Subscribe(ctx, channel)
		},
	}
}

// newWithDeps is used by tests to inject fakes for both the publisher and
// the subscribe factory.
func newWithDeps(rdb publisher, channel string, subscribe func(ctx context.Context, channel string) pubsub) *Bus {
	return &Bus{rdb: rdb, channel: channel, subscribe: subscribe}
}

// Publish serializes payload and publishes it on the shared channel.
// Failures are logged, not propagated — the caller treats a relay publish
// as queued regardless of whether Redis is reachable at the instant of
// the call.
func (b *Bus) Publish(ctx context.Context, payload protocol.RelayPayload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("relay payload marshal failed", "component", "relay", "err", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		slog.Error("relay publish failed", "component", "relay", "err", err)
	}
}

// Handler receives a decoded relay payload delivered to this pod.
type Handler func(ctx context.Context, payload protocol.RelayPayload)

// Run subscribes to the shared channel and invokes handler for every
// message until ctx is canceled. It is meant to run on a dedicated
// subscriber worker.
func (b *Bus) Run(ctx context.Context, handler Handler) error {
	sub := b.subscribe(ctx, b.channel)
	defer sub.Close()

	slog.Info("relay subscriber started", "component", "relay", "channel", b.channel)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			var payload protocol.RelayPayload
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				slog.Warn("relay message decode failed", "component", "relay", "err", err)
				continue
			}
			handler(ctx, payload)
		}
	}
}
