package presence

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"testing"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	if v, ok := f.data[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func TestRegisterLookup(t *testing.T) {
	d := newWithClient(newFakeRedis())
	ctx := context.Background()

	d.Register(ctx, "u1", "pod-a")
	pod, ok := d.Lookup(ctx, "u1")
	if !ok || pod != "pod-a" {
		t.Fatalf("Lookup = (%q, %v), want (pod-a, true)", pod, ok)
	}
}

func TestUnregisterRemovesEntry(t *testing.T) {
	d := newWithClient(newFakeRedis())
	ctx := context.Background()

	d.Register(ctx, "u1", "pod-a")
	d.Unregister(ctx, "u1")

	if d.Has(ctx, "u1") {
		t.Fatal("expected no presence entry after unregister")
	}
}

func TestLookupMissingUser(t *testing.T) {
	d := newWithClient(newFakeRedis())
	if _, ok := d.Lookup(context.Background(), "ghost"); ok {
		t.Fatal("expected miss for unregistered user")
	}
}

func TestRegisterReplacesExistingEntry(t *testing.T) {
	d := newWithClient(newFakeRedis())
	ctx := context.Background()

	d.Register(ctx, "u1", "pod-a")
	d.Register(ctx, "u1", "pod-b")

	pod, ok := d.Lookup(ctx, "u1")
	if !ok || pod != "pod-b" {
		t.Fatalf("Lookup = (%q, %v), want (pod-b, true) — at most one entry per user", pod, ok)
	}
}
