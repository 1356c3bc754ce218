package stats

import (
	"context"
	"sync"
)

// Memory keeps totals in process memory. It does not expire anything.
type Memory struct {
	mu     sync.Mutex
	totals map[string]int64
}

func NewMemory() *Memory {
	return &Memory{totals: make(map[string]int64)}
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[ev.Outcome]++
	return nil
}

func (m *Memory) Totals(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.totals))
	for k, v := range m.totals {
		out[k] = v
	}
	return out, nil
}
