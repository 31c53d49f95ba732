// Package cache stores derived chart data between refreshes and remembers
// which alerts were already delivered.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/metrics"
)

// Store keeps JSON-encodable values for a limited time.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Deduper remembers delivered alerts. AlreadySent fails closed; Sent
// reports lookup errors to callers that must not guess.
type Deduper interface {
	AlreadySent(ctx context.Context, key string) bool
	Sent(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string)
	Clear(ctx context.Context, key string)
}

type entry struct {
	data    []byte
	expires time.Time // zero means no expiry
}

// Memory is a process-local Store and Deduper. Reads and writes are
// serialised, so a read-then-write by one caller can still interleave with
// another's; callers that need a single writer must arrange it.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		metrics.CacheLookups.WithLabelValues("memory", "miss").Inc()
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	metrics.CacheLookups.WithLabelValues("memory", "hit").Inc()
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	e := entry{data: b}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) AlreadySent(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func (m *Memory) Sent(ctx context.Context, key string) (bool, error) {
	return m.AlreadySent(ctx, key), nil
}

func (m *Memory) Record(_ context.Context, key string) {
	m.mu.Lock()
	m.entries[key] = entry{data: []byte("1")}
	m.mu.Unlock()
}

func (m *Memory) Clear(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
