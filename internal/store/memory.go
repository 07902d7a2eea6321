package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type metaKey struct {
	item uint64
	key  string
}

// Memory implements OptionStore and MetaStore in process.
type Memory struct {
	mu      sync.RWMutex
	options map[string]string
	meta    map[metaKey]string
}

func NewMemory() *Memory {
	return &Memory{options: map[string]string{}, meta: map[metaKey]string{}}
}

func (m *Memory) GetOption(_ context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.options[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) SetOption(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[name] = value
	return nil
}

func (m *Memory) AddOption(_ context.Context, name, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.options[name]; ok {
		return false, nil
	}
	m.options[name] = value
	return true, nil
}

func (m *Memory) DeleteOption(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.options, name)
	return nil
}

func (m *Memory) DeleteOptionsByPrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.options {
		if strings.HasPrefix(k, prefix) {
			delete(m.options, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetMeta(_ context.Context, itemID uint64, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.meta[metaKey{itemID, key}]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) SetMeta(_ context.Context, itemID uint64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[metaKey{itemID, key}] = value
	return nil
}

func (m *Memory) DeleteMeta(_ context.Context, itemID uint64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.meta, metaKey{itemID, key})
	return nil
}

func (m *Memory) DeleteMetaKey(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.meta {
		if k.key == key {
			delete(m.meta, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ItemsWithMeta(_ context.Context, key, value string) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []uint64
	for k, v := range m.meta {
		if k.key == key && v == value {
			ids = append(ids, k.item)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) UpsertMetaBulk(_ context.Context, itemIDs []uint64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range itemIDs {
		m.meta[metaKey{id, key}] = value
	}
	return nil
}

func (m *Memory) DeleteMetaBulk(_ context.Context, itemIDs []uint64, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range itemIDs {
		k := metaKey{id, key}
		if _, ok := m.meta[k]; ok {
			delete(m.meta, k)
			n++
		}
	}
	return n, nil
}
