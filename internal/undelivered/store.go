// Package undelivered implements the durable per-receiver message store: a
// Redis hash per receiver, keyed by message ID, with store/fetch/deleteAll/
// deleteOne/has operations.
package undelivered

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"chatgate/internal/protocol"
)

const keyPrefix = "undelivered:"

// client is the narrow subset of redis.Cmdable the store needs.
type client interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store is the Redis-hash-backed undelivered message store.
type Store struct {
	rdb client
	ttl time.Duration
}

// New constructs a Store with the given retention window applied (not
// extended) on every store call.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func newWithClient(c client, ttl time.Duration) *Store {
	return &Store{rdb: c, ttl: ttl}
}

func key(receiverID string) string {
	return keyPrefix + receiverID
}

// Store persists env under the receiver's hash, keyed by messageId, and
// applies the retention-window TTL. A missing receiver or messageId is
// rejected.
func (s *Store) Store(ctx context.Context, receiverID string, env protocol.Envelope) error {
	if receiverID == "" {
		return fmt.Errorf("undelivered: receiver is required")
	}
	if env.MessageID == "" {
		return fmt.Errorf("undelivered: messageId is required")
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("undelivered: marshal envelope: %w", err)
	}

	k := key(receiverID)
	if err := s.rdb.HSet(ctx, k, env.MessageID, raw).Err(); err != nil {
		slog.Error("undelivered store failed", "component", "undelivered", "receiver_id", receiverID, "err", err)
		return err
	}
	if err := s.rdb.Expire(ctx, k, s.ttl).Err(); err != nil {
		slog.Error("undelivered ttl set failed", "component", "undelivered", "receiver_id", receiverID, "err", err)
	}
	return nil
}

// Fetch returns every envelope stored for receiver, sorted by Timestamp
// ascending (Redis hash field order is not guaranteed, so this is how
// insertion order is approximated). A single undecodable record is logged
// and skipped; it never loses the rest of the batch.
func (s *Store) Fetch(ctx context.Context, receiverID string) ([]protocol.Envelope, error) {
	raw, err := s.rdb.HGetAll(ctx, key(receiverID)).Result()
	if err != nil {
		slog.Error("undelivered fetch failed", "component", "undelivered", "receiver_id", receiverID, "err", err)
		return nil, err
	}

	envelopes := make([]protocol.Envelope, 0, len(raw))
	for messageID, v := range raw {
		var env protocol.Envelope
		if err := json.Unmarshal([]byte(v), &env); err != nil {
			slog.Warn("undelivered record decode failed", "component", "undelivered", "receiver_id", receiverID, "message_id", messageID, "err", err)
			continue
		}
		envelopes = append(envelopes, env)
	}

	sort.Slice(envelopes, func(i, j int) bool { return envelopes[i].Timestamp < envelopes[j].Timestamp })
	return envelopes, nil
}

// DeleteAll removes the entire hash for receiver. Used by the fetch-then-
// delete REST endpoint to give at-most-once client-visible delivery.
func (s *Store) DeleteAll(ctx context.Context, receiverID string) error {
	if err := s.rdb.Del(ctx, key(receiverID)).Err(); err != nil {
		slog.Error("undelivered deleteAll failed", "component", "undelivered", "receiver_id", receiverID, "err", err)
		return err
	}
	return nil
}

// DeleteOne removes a single message field from receiver's hash.
func (s *Store) DeleteOne(ctx context.Context, receiverID, messageID string) error {
	if err := s.rdb.HDel(ctx, key(receiverID), messageID).Err(); err != nil {
		slog.Error("undelivered deleteOne failed", "component", "undelivered", "receiver_id", receiverID, "message_id", messageID, "err", err)
		return err
	}
	return nil
}

// Has reports whether receiver has any stored messages.
func (s *Store) Has(ctx context.Context, receiverID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key(receiverID)).Result()
	if err != nil {
		slog.Error("undelivered has failed", "component", "undelivered", "receiver_id", receiverID, "err", err)
		return false, err
	}
	return n > 0, nil
}
