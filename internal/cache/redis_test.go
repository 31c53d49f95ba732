package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	r, err := NewRedis("redis://"+mr.Addr(), "")
	if err != nil {
		mr.Close()
		t.Fatalf("NewRedis: %v", err)
	}
	return r, mr
}

func TestRedisSetGet(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	want := []float64{1, 2, 3}
	if err := r.Set(ctx, "chart:staking", want, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got []float64
	ok, err := r.Get(ctx, "chart:staking", &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v; want hit", ok, err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("Get value = %v, want %v", got, want)
	}
}

func TestRedisGetMiss(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	var got []float64
	ok, err := r.Get(context.Background(), "chart:none", &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get should miss for unknown key")
	}
}

func TestRedisTTLExpiry(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	if err := r.Set(ctx, "chart:staking", 42, 24*time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(25 * time.Hour)

	var got int
	ok, err := r.Get(ctx, "chart:staking", &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("value should have expired")
	}
}

func TestAlreadySentNewKey(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	if r.AlreadySent(ctx, "test:key:1") {
		t.Error("AlreadySent should return false for new key")
	}
}

func TestRecordAndAlreadySent(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	r.Record(ctx, "test:key:2")

	if !r.AlreadySent(ctx, "test:key:2") {
		t.Error("AlreadySent should return true after Record")
	}
}

func TestClear(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	r.Record(ctx, "test:key:3")

	if !r.AlreadySent(ctx, "test:key:3") {
		t.Fatal("should be sent after Record")
	}

	r.Clear(ctx, "test:key:3")
	if r.AlreadySent(ctx, "test:key:3") {
		t.Error("AlreadySent should return false after Clear")
	}
}

func TestSent(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	sent, err := r.Sent(ctx, "refresh_failed:revenue")
	if err != nil || sent {
		t.Fatalf("Sent = %v, %v; want false, nil", sent, err)
	}
	r.Record(ctx, "refresh_failed:revenue")
	sent, err = r.Sent(ctx, "refresh_failed:revenue")
	if err != nil || !sent {
		t.Errorf("Sent = %v, %v; want true, nil", sent, err)
	}
}

func TestSentReportsOutage(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer r.Close()
	mr.Close()

	if _, err := r.Sent(context.Background(), "any:key"); err == nil {
		t.Error("Sent should return an error when Redis is down")
	}
}

func TestAlreadySentFailClosed(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer r.Close()

	// Stop Redis to simulate failure
	mr.Close()

	ctx := context.Background()
	if !r.AlreadySent(ctx, "any:key") {
		t.Error("AlreadySent should return true (fail-closed) when Redis is down")
	}
}
