package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"resellerhq/warden/pkg/panels"
)

// MemoryStore implements panels.Store in memory. It is safe for concurrent
// use; every update runs under one lock, so each UpdatePanel is atomic.
type MemoryStore struct {
	mu      sync.RWMutex
	panels  map[int64]*panels.AdminPanel
	samples []panels.UsageSample
	logs    []panels.LogEntry
	nextID  int64
	nextSID int64
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		panels: make(map[int64]*panels.AdminPanel),
		now:    time.Now,
	}
}

func (m *MemoryStore) CreatePanel(ctx context.Context, p *panels.AdminPanel) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.panels {
		if existing.Username == p.Username {
			return 0, fmt.Errorf("insert panel %q: username already exists", p.Username)
		}
	}

	now := m.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.Status == "" {
		p.Status = panels.StatusActive
	}
	p.UpdatedAt = now

	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.panels[p.ID] = &cp
	return p.ID, nil
}

func (m *MemoryStore) GetPanel(ctx context.Context, id int64) (*panels.AdminPanel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.panels[id]
	if !ok {
		return nil, panels.ErrPanelNotFound
	}
	return clonePanel(p), nil
}

func (m *MemoryStore) GetPanelByUsername(ctx context.Context, username string) (*panels.AdminPanel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.panels {
		if p.Username == username {
			return clonePanel(p), nil
		}
	}
	return nil, panels.ErrPanelNotFound
}

func (m *MemoryStore) ActivePanels(ctx context.Context) ([]panels.AdminPanel, error) {
	return m.list(func(p *panels.AdminPanel) bool { return p.IsActive() }), nil
}

func (m *MemoryStore) ListPanels(ctx context.Context) ([]panels.AdminPanel, error) {
	return m.list(func(*panels.AdminPanel) bool { return true }), nil
}

func (m *MemoryStore) list(keep func(*panels.AdminPanel) bool) []panels.AdminPanel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]panels.AdminPanel, 0, len(m.panels))
	for _, p := range m.panels {
		if keep(p) {
			out = append(out, *clonePanel(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) UpdatePanel(ctx context.Context, id int64, upd *panels.Update) error {
	if upd == nil || upd.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.panels[id]
	if !ok {
		return panels.ErrPanelNotFound
	}
	upd.Apply(p, m.now().UTC())
	return nil
}

func (m *MemoryStore) AppendSample(ctx context.Context, s panels.UsageSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Timestamp.IsZero() {
		s.Timestamp = m.now()
	}
	m.nextSID++
	s.ID = m.nextSID
	m.samples = append(m.samples, s)
	return nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, e panels.LogEntry) error {
	if e.ID == "" {
		return fmt.Errorf("log entry for panel %d has no id", e.PanelID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.logs = append(m.logs, e)
	return nil
}

func (m *MemoryStore) RecentSamples(ctx context.Context, panelID int64, limit int) ([]panels.UsageSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []panels.UsageSample
	for i := len(m.samples) - 1; i >= 0 && len(out) < limit; i-- {
		if m.samples[i].PanelID == panelID {
			out = append(out, m.samples[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) RecentLogs(ctx context.Context, panelID int64, limit int) ([]panels.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []panels.LogEntry
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].PanelID == panelID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.samples[:0]
	var n int64
	for _, s := range m.samples {
		if s.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return n, nil
}

func (m *MemoryStore) PruneLogs(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.logs[:0]
	var n int64
	for _, e := range m.logs {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.logs = kept
	return n, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	return nil
}

func clonePanel(p *panels.AdminPanel) *panels.AdminPanel {
	cp := *p
	if p.DeactivatedAt != nil {
		t := *p.DeactivatedAt
		cp.DeactivatedAt = &t
	}
	return &cp
}

var _ panels.Store = (*MemoryStore)(nil)
