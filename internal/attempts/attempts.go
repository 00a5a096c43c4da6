// Package attempts counts consecutive failed runs per target so a runner can
// stop retrying targets that keep failing.
package attempts

import (
	"context"
	"sync"
)

// Tracker stores failed-attempt counts keyed by target id.
type Tracker interface {
	// Count returns the current failure count, 0 when unknown.
	Count(ctx context.Context, targetID int64) (int, error)
	// Fail increments the count and returns the new value.
	Fail(ctx context.Context, targetID int64) (int, error)
	// Reset clears the count after a success.
	Reset(ctx context.Context, targetID int64) error
}

var _ Tracker = (*Memory)(nil)

// Memory is a process-local Tracker. Counts do not survive a restart.
type Memory struct {
	mu     sync.Mutex
	counts map[int64]int
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[int64]int)}
}

func (m *Memory) Count(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[id], nil
}

func (m *Memory) Fail(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[id]++
	return m.counts[id], nil
}

func (m *Memory) Reset(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, id)
	return nil
}
