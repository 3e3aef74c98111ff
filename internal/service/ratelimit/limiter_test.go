package ratelimit

import (
	"testing"
	"time"
)

func TestAllowBurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if !l.Allow("telegram", 3, 1) {
			t.Fatalf("call %d should pass within burst", i)
		}
	}
	if l.Allow("telegram", 3, 1) {
		t.Fatalf("burst exhausted, expected deny")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("telegram", 3, 1) {
		t.Fatalf("expected one token refilled")
	}
	if l.Allow("telegram", 3, 1) {
		t.Fatalf("only one token should have refilled")
	}
}

func TestAllowKeysIndependent(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(WithClock(func() time.Time { return now }))
	if !l.Allow("a", 1, 0) || !l.Allow("b", 1, 0) {
		t.Fatalf("each key starts with a full bucket")
	}
	if l.Allow("a", 1, 0) {
		t.Fatalf("key a should be empty")
	}
	if l.Keys() != 2 {
		t.Fatalf("keys=%d want 2", l.Keys())
	}
}

func TestAllowZeroCapacityUnlimited(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		if !l.Allow("x", 0, 0) {
			t.Fatalf("zero capacity must not limit")
		}
	}
	if l.Keys() != 0 {
		t.Fatalf("unlimited calls must not allocate buckets")
	}
}

func TestRefillCapped(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(WithClock(func() time.Time { return now }))
	l.Allow("k", 2, 10)
	now = now.Add(time.Hour)
	if !l.Allow("k", 2, 10) || !l.Allow("k", 2, 10) {
		t.Fatalf("expected full bucket")
	}
	if l.Allow("k", 2, 10) {
		t.Fatalf("bucket must cap at capacity")
	}
}
