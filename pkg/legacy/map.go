package legacy

import (
	"context"
	"sync"
)

// MapSource is an in-memory shadow, typically built from a snapshot a browser uploaded.
type MapSource struct {
	mu      sync.RWMutex
	entries map[string]string
}

var (
	_ ReadWriter = (*MapSource)(nil)
	_ Updater    = (*MapSource)(nil)
)

// NewMapSource copies entries into a new MapSource.
func NewMapSource(entries map[string]string) *MapSource {
	m := &MapSource{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		m.entries[k] = v
	}
	return m
}

func (m *MapSource) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MapSource) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MapSource) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Update applies fn to the entries while holding the lock.
func (m *MapSource) Update(ctx context.Context, fn func(entries map[string]string) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.entries)
	return nil
}

// Snapshot returns a copy of every entry.
func (m *MapSource) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}
