// Package notify implements a durable-bus producer for "push this to user"
// events, partitioned by receiver so a single receiver's events share one
// partition downstream.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	kafka "github.com/segmentio/kafka-go"

	"chatgate/internal/protocol"
)

// writer is the narrow subset of *kafka.Writer the publisher needs.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher produces to the legacy sample/OTP topic and the offline
// notification topic.
type Publisher struct {
	sample  writer
	offline writer
}

// New constructs a Publisher backed by Kafka brokers, one writer per topic
// so each can be partitioned independently.
func New(brokers []string, sampleTopic, offlineTopic string) *Publisher {
	return &Publisher{
		sample:  &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: sampleTopic, Balancer: &kafka.Hash{}},
		offline: &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: offlineTopic, Balancer: &kafka.Hash{}},
	}
}

func newWithWriters(sample, offline writer) *Publisher {
	return &Publisher{sample: sample, offline: offline}
}

// PublishSample publishes a legacy in-app/OTP notification. Failures are
// logged and never returned: storing or delivering a message must not roll
// back because the notification side effect failed.
func (p *Publisher) PublishSample(ctx context.Context, n protocol.SampleNotification) {
	raw, err := json.Marshal(n)
	if err != nil {
		slog.Error("sample notification marshal failed", "component", "notify", "err", err)
		return
	}
	if err := p.sample.WriteMessages(ctx, kafka.Message{Key: []byte(n.ReceiverID), Value: raw}); err != nil {
		slog.Error("sample notification publish failed", "component", "notify", "receiver_id", n.ReceiverID, "err", err)
	}
}

// PublishOffline publishes to the offline-notification topic, keyed by
// receiver ID so all events for one receiver share a partition.
func (p *Publisher) PublishOffline(ctx context.Context, n protocol.OfflineNotification) {
	raw, err := json.Marshal(n)
	if err != nil {
		slog.Error("offline notification marshal failed", "component", "notify", "err", err)
		return
	}
	key := "undelivered:" + n.ReceiverID
	if err := p.offline.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: raw}); err != nil {
		slog.Error("offline notification publish failed", "component", "notify", "receiver_id", n.ReceiverID, "err", err)
	}
}

// CustomerIDFromRaw casts a raw receiver ID to the numeric customer ID the
// offline topic expects. Non-numeric IDs silently fall back to zero.
func CustomerIDFromRaw(rawID string) int64 {
	n, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
