// Package cache provides an in-memory LRU with TTL and a manager that sweeps
// expired entries in the background.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches whose entries expire.
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps every registered cache on a fixed interval.
type Manager struct {
	mu       sync.Mutex
	caches   []Cleaner
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager() *Manager {
	return &Manager{}
}

// Register adds a cache to the sweep. Safe to call while running.
func (m *Manager) Register(cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, cache)
}

// StartCleanup sweeps until ctx is done or Stop is called.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.cleanup(ctx, interval, done)
}

func (m *Manager) cleanup(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanAll(); n > 0 {
				slog.DebugContext(ctx, "Expired cache entries removed", log.FieldComponent, log.ComponentCache, log.FieldCount, n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// CleanAll runs one sweep and returns how many entries were removed.
func (m *Manager) CleanAll() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the sweep and waits for it. Calling it more than once, or
// without StartCleanup, is a no-op.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		cancel, done := m.cancel, m.done
		m.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-done
	})
}
