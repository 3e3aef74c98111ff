package util

import (
	"context"
	"testing"
	"time"
)

func TestAlignToTimeframe(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 37, 0, time.UTC)
	got := AlignToTimeframe(ts, time.Minute)
	if !got.Equal(time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC)) {
		t.Fatalf("unexpected aligned time %v", got)
	}
	got = AlignToTimeframe(ts, 5*time.Minute)
	if !got.Equal(time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC)) {
		t.Fatalf("unexpected 5m aligned time %v", got)
	}
	if !AlignToTimeframe(ts, 0).Equal(ts) {
		t.Fatalf("zero timeframe should not change time")
	}
}

func TestFromUnixSecondsAndMillis(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	if got := FromUnix(want.Unix()); !got.Equal(want) {
		t.Fatalf("seconds: got %v", got)
	}
	if got := FromUnix(want.UnixMilli()); !got.Equal(want) {
		t.Fatalf("millis: got %v", got)
	}
	if !FromUnix(0).IsZero() {
		t.Fatalf("expected zero time")
	}
}

func TestFormatInZone(t *testing.T) {
	ts := time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)
	loc := time.FixedZone("AST", -4*3600)
	if got := FormatInZone(ts, loc); got != "2024-10-10 08:00:00 AST" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := FormatInZone(ts, nil); got != "2024-10-10 12:00:00 UTC" {
		t.Fatalf("unexpected utc format %q", got)
	}
}

func TestAbsDuration(t *testing.T) {
	if AbsDuration(-3*time.Second) != 3*time.Second {
		t.Fatalf("expected positive duration")
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := SleepContext(ctx, time.Hour); err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep did not return on cancel")
	}
}

func TestSleepContextZero(t *testing.T) {
	if err := SleepContext(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
