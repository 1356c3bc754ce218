package throttle

import (
	"context"
	"sync"
	"time"
)

const defaultShards = 32

// Memory keeps one next-allowed timestamp per user, spread over shards that
// each have their own lock. Entries live for the process lifetime only.
type Memory struct {
	shards       []shard
	now          func() time.Time
	cleanupEvery time.Duration
}

type shard struct {
	mu   sync.Mutex
	next map[int64]time.Time
}

type MemoryOption func(*Memory)

func WithShards(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.shards = make([]shard, n)
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryOption {
	return func(m *Memory) { m.cleanupEvery = d }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		shards:       make([]shard, defaultShards),
		now:          time.Now,
		cleanupEvery: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := range m.shards {
		m.shards[i].next = make(map[int64]time.Time)
	}
	return m
}

func (m *Memory) TryAcquire(_ context.Context, userID int64, window time.Duration) (Result, error) {
	now := m.now()
	s := m.shardFor(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if next, ok := s.next[userID]; ok && next.After(now) {
		return Result{Wait: next.Sub(now)}, nil
	}
	s.next[userID] = now.Add(window)
	return Result{Granted: true}, nil
}

// Cleanup drops entries whose window has passed.
func (m *Memory) Cleanup() {
	now := m.now()
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for id, next := range s.next {
			if !next.After(now) {
				delete(s.next, id)
			}
		}
		s.mu.Unlock()
	}
}

// Len counts live entries.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.next)
		s.mu.Unlock()
	}
	return n
}

// StartJanitor runs Cleanup periodically until ctx is done.
func (m *Memory) StartJanitor(ctx context.Context) {
	if m.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(m.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Cleanup()
			}
		}
	}()
}

func (m *Memory) shardFor(userID int64) *shard {
	idx := uint64(userID) % uint64(len(m.shards))
	return &m.shards[idx]
}
