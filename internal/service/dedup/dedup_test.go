package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var base = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

func TestSlidingCooldown(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), 600*time.Second, ModeSliding, nil)

	if !c.ShouldFire(ctx, "EURUSD-OTC", models.DirectionPut, base) {
		t.Fatalf("first fire should pass")
	}
	if err := c.Record(ctx, "EURUSD-OTC", models.DirectionPut, base); err != nil {
		t.Fatalf("record: %v", err)
	}
	if c.ShouldFire(ctx, "EURUSD-OTC", models.DirectionPut, base.Add(time.Second)) {
		t.Fatalf("immediate repeat should be suppressed")
	}
	if c.ShouldFire(ctx, "EURUSD-OTC", models.DirectionPut, base.Add(599*time.Second)) {
		t.Fatalf("repeat inside cooldown should be suppressed")
	}
	if !c.ShouldFire(ctx, "EURUSD-OTC", models.DirectionPut, base.Add(600*time.Second)) {
		t.Fatalf("repeat at cooldown should pass")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), 600*time.Second, "", nil)
	_ = c.Record(ctx, "EURUSD-OTC", models.DirectionPut, base)

	if !c.ShouldFire(ctx, "EURUSD-OTC", models.DirectionCall, base) {
		t.Fatalf("opposite direction should not be suppressed")
	}
	if !c.ShouldFire(ctx, "GBPUSD-OTC", models.DirectionPut, base) {
		t.Fatalf("other instrument should not be suppressed")
	}
}

func TestShouldFireDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := New(s, time.Minute, ModeSliding, nil)
	for i := 0; i < 3; i++ {
		if !c.ShouldFire(ctx, "X", models.DirectionCall, base) {
			t.Fatalf("should fire without record")
		}
	}
	if s.Len() != 0 {
		t.Fatalf("expected no entries, got %d", s.Len())
	}
}

func TestBucketMode(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), 300*time.Second, ModeBucket, nil)

	// one second before a bucket boundary
	first := time.Unix(0, 0).Add(300*time.Second*1000 - time.Second).UTC()
	_ = c.Record(ctx, "X", models.DirectionPut, first)
	if c.ShouldFire(ctx, "X", models.DirectionPut, first.Add(500*time.Millisecond)) {
		t.Fatalf("same bucket should be suppressed")
	}
	if !c.ShouldFire(ctx, "X", models.DirectionPut, first.Add(time.Second)) {
		t.Fatalf("next bucket should fire even one second later")
	}
}

func TestMemoryStoreSweepsExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.SetFired(ctx, "a", base, time.Minute)
	_ = s.SetFired(ctx, "b", base.Add(2*time.Minute), time.Minute)
	if s.Len() != 1 {
		t.Fatalf("expected expired key swept, got %d", s.Len())
	}
}

type failingStore struct{}

func (failingStore) LastFired(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("down")
}

func (failingStore) SetFired(context.Context, string, time.Time, time.Duration) error {
	return errors.New("down")
}

func TestStoreErrorSuppresses(t *testing.T) {
	c := New(failingStore{}, time.Minute, ModeSliding, nil)
	if c.ShouldFire(context.Background(), "X", models.DirectionPut, base) {
		t.Fatalf("store error should suppress")
	}
	if err := c.Record(context.Background(), "X", models.DirectionPut, base); err == nil {
		t.Fatalf("expected record error")
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := cache.NewRedisCacheFromClient(client, "test")
	defer rc.Close()

	ctx := context.Background()
	c := New(NewRedisStore(rc), 600*time.Second, ModeSliding, nil)

	if !c.ShouldFire(ctx, "EURUSD-OTC", models.DirectionCall, base) {
		t.Fatalf("first fire should pass")
	}
	if err := c.Record(ctx, "EURUSD-OTC", models.DirectionCall, base); err != nil {
		t.Fatalf("record: %v", err)
	}
	if c.ShouldFire(ctx, "EURUSD-OTC", models.DirectionCall, base.Add(10*time.Second)) {
		t.Fatalf("repeat should be suppressed")
	}
	if !c.ShouldFire(ctx, "EURUSD-OTC", models.DirectionCall, base.Add(600*time.Second)) {
		t.Fatalf("repeat after cooldown should pass")
	}

	ttl, err := rc.TTL(ctx, "cooldown:EURUSD-OTC:CALL")
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl != 600*time.Second {
		t.Fatalf("expected ttl 600s, got %v", ttl)
	}

	mr.FastForward(601 * time.Second)
	if _, ok, _ := NewRedisStore(rc).LastFired(ctx, "EURUSD-OTC:CALL"); ok {
		t.Fatalf("expected key to expire")
	}
}
