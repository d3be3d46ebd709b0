package docstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store. The zero value is not usable; use
// NewMemory.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]string
}

// NewMemory returns a store seeded with docs (which may be nil).
func NewMemory(docs map[string]string) *Memory {
	m := &Memory{docs: make(map[string]string, len(docs))}
	for k, v := range docs {
		m.docs[k] = v
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.docs[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return text, nil
}

func (m *Memory) ListKeys(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	return filterKeys(keys, pattern)
}

func (m *Memory) Set(_ context.Context, key, text string) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[key] = text
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.docs, key)
	return nil
}
