// Package presence implements the shared presence directory: a Redis-backed
// {user -> pod} view visible to every pod.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// client is the narrow subset of redis.Cmdable the directory needs. Keeping
// it narrow lets tests supply a hand-written fake instead of a live Redis
// instance.
type client interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Directory is the shared key-value view of {user -> pod}. All operations
// are best-effort: a temporary unavailability of Redis must not close
// client sockets, so every method logs and degrades rather than panicking.
type Directory struct {
	rdb client
}

// New wraps an existing redis client. The gateway owns the client's
// lifecycle (construction, close) so tests can supply a fake or a real
// instance interchangeably.
func New(rdb *redis.Client) *Directory {
	return &Directory{rdb: rdb}
}

// newWithClient is used by tests to inject a fake client.
func newWithClient(c client) *Directory {
	return &Directory{rdb: c}
}

func key(userID string) string {
	return keyPrefix + userID
}

// Register sets the presence entry for user on pod. No TTL is applied: the
// entry persists until an explicit Unregister.
func (d *Directory) Register(ctx context.Context, userID, pod string) {
	if err := d.rdb.Set(ctx, key(userID), pod, 0).Err(); err != nil {
		slog.Error("presence register failed", "component", "presence", "user_id", userID, "err", err)
	}
}

// Unregister deletes the presence entry for user.
func (d *Directory) Unregister(ctx context.Context, userID string) {
	if err := d.rdb.Del(ctx, key(userID)).Err(); err != nil {
		slog.Error("presence unregister failed", "component", "presence", "user_id", userID, "err", err)
	}
}

// Lookup returns the pod a user is registered on, if any. A Redis error is
// treated the same as "absent" (offline).
func (d *Directory) Lookup(ctx context.Context, userID string) (pod string, ok bool) {
	v, err := d.rdb.Get(ctx, key(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Error("presence lookup failed", "component", "presence", "user_id", userID, "err", err)
		}
		return "", false
	}
	return v, true
}

// Has reports whether user has any presence entry.
func (d *Directory) Has(ctx context.Context, userID string) bool {
	_, ok := d.Lookup(ctx, userID)
	return ok
}

// Refresh touches the presence entry so it can serve as a periodic sweep
// target. With the persistent presence model this is equivalent to
// Register and is safe to call repeatedly.
func (d *Directory) Refresh(ctx context.Context, userID, pod string) {
	d.Register(ctx, userID, pod)
}
