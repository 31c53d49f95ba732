package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "chart", map[string]int{"a": 1}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got map[string]int
	ok, err := m.Get(ctx, "chart", &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v; want hit", ok, err)
	}
	if got["a"] != 1 {
		t.Errorf("got %v", got)
	}
}

func TestMemoryTTL(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "chart", 7, 24*time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(23 * time.Hour)
	var v int
	if ok, _ := m.Get(ctx, "chart", &v); !ok || v != 7 {
		t.Errorf("before expiry: ok=%v v=%d", ok, v)
	}

	now = now.Add(time.Hour)
	if ok, _ := m.Get(ctx, "chart", &v); ok {
		t.Error("value should expire after ttl")
	}
}

func TestMemoryLastWriteWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "chart", 1, time.Hour)
	_ = m.Set(ctx, "chart", 2, time.Hour)

	var v int
	if _, err := m.Get(ctx, "chart", &v); err != nil || v != 2 {
		t.Errorf("v = %d, err = %v; want 2", v, err)
	}
}

func TestMemoryDedup(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if m.AlreadySent(ctx, "refresh_failed:apy") {
		t.Fatal("new key reported as sent")
	}
	m.Record(ctx, "refresh_failed:apy")
	m.Record(ctx, "refresh_failed:prices")
	if !m.AlreadySent(ctx, "refresh_failed:apy") {
		t.Error("recorded key not reported as sent")
	}
	m.Clear(ctx, "refresh_failed:apy")
	if m.AlreadySent(ctx, "refresh_failed:apy") {
		t.Error("cleared key still reported as sent")
	}
	if sent, err := m.Sent(ctx, "refresh_failed:prices"); err != nil || !sent {
		t.Errorf("Sent = %v, %v; want true, nil", sent, err)
	}
}
