package credstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store, used in tests and single-node deployments
// where settings come from the config file.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory builds a Memory store seeded with values.
func NewMemory(values map[string]string) *Memory {
	m := &Memory{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores or replaces a value.
func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}
