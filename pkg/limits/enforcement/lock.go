package enforcement

import (
	"context"
	"sync"

	"resellerhq/warden/pkg/panels"
)

// Locker serializes actions on one panel.
type Locker interface {
	// Lock blocks until the panel lock is acquired or ctx is done.
	Lock(ctx context.Context, panelID int64) (release func(), err error)

	// TryLock acquires the panel lock without waiting. It returns
	// panels.ErrLocked when another holder has it.
	TryLock(ctx context.Context, panelID int64) (release func(), err error)
}

// MemoryLocker is an in-process keyed lock.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[int64]chan struct{}
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[int64]chan struct{})}
}

func (m *MemoryLocker) Lock(ctx context.Context, panelID int64) (func(), error) {
	for {
		m.mu.Lock()
		wait, busy := m.held[panelID]
		if !busy {
			release := m.acquire(panelID)
			m.mu.Unlock()
			return release, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (m *MemoryLocker) TryLock(ctx context.Context, panelID int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.held[panelID]; busy {
		return nil, panels.ErrLocked
	}
	return m.acquire(panelID), nil
}

// acquire must be called with m.mu held.
func (m *MemoryLocker) acquire(panelID int64) func() {
	done := make(chan struct{})
	m.held[panelID] = done

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, panelID)
			m.mu.Unlock()
			close(done)
		})
	}
}
