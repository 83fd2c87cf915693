package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"studio/internal/domain"
)

// MemoryStore keeps history in process memory. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	open    bool
	items   map[string]domain.HistoryItem
	prompts map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]domain.HistoryItem),
		prompts: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *MemoryStore) PutItems(ctx context.Context, items []domain.HistoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrStoreClosed
	}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return nil
}

func (m *MemoryStore) ListItems(ctx context.Context) ([]domain.HistoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.open {
		return nil, ErrStoreClosed
	}
	out := make([]domain.HistoryItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrStoreClosed
	}
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) ClearItems(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrStoreClosed
	}
	clear(m.items)
	return nil
}

func (m *MemoryStore) PutPrompt(ctx context.Context, prompt string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrStoreClosed
	}
	m.prompts[prompt] = usedAt
	return nil
}

func (m *MemoryStore) ListPrompts(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.open {
		return nil, ErrStoreClosed
	}
	return m.sortedPromptsLocked(), nil
}

func (m *MemoryStore) TrimPrompts(ctx context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrStoreClosed
	}
	sorted := m.sortedPromptsLocked()
	for i := keep; i < len(sorted); i++ {
		delete(m.prompts, sorted[i])
	}
	return nil
}

func (m *MemoryStore) ClearPrompts(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrStoreClosed
	}
	clear(m.prompts)
	return nil
}

func (m *MemoryStore) sortedPromptsLocked() []string {
	out := make([]string, 0, len(m.prompts))
	for p := range m.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := m.prompts[out[i]], m.prompts[out[j]]
		if ti.Equal(tj) {
			return out[i] < out[j]
		}
		return ti.After(tj)
	})
	return out
}

var _ Store = (*MemoryStore)(nil)
