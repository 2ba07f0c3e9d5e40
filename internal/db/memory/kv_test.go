package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/tablekit/internal/db"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestKV_TTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	kv := NewKV(WithClock(clock.Now))
	ctx := context.Background()

	if err := kv.SetWithTTL(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := kv.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("get = %q, %v", got, err)
	}

	clock.t = clock.t.Add(30 * time.Second)
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
}

func TestKV_IncrByAndDel(t *testing.T) {
	kv := NewKV()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := kv.IncrBy(ctx, "gen", 1)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != want {
			t.Errorf("incr = %d, want %d", n, want)
		}
	}
	if err := kv.Set(ctx, "bad", []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := kv.IncrBy(ctx, "bad", 1); err == nil {
		t.Error("expected error incrementing a non-integer")
	}
	if err := kv.Del(ctx, "gen"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := kv.Get(ctx, "gen"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}
