// Package storage holds the key value persistence the SDK keeps its
// durable state in.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store closed")

// Namespace prefixes every key the SDK writes.
const Namespace = "clickstream/"

// Persisted state keys.
const (
	KeyDeviceID          = Namespace + "deviceId"
	KeyFirstOpenRecorded = Namespace + "firstOpenRecorded"
	KeySessionInfo       = Namespace + "sessionInfo"
	KeyUserInfo          = Namespace + "userInfo"
	KeyPageInfo          = Namespace + "pageInfo"
	KeyImmediateEvents   = Namespace + "immediateEvents"
	KeyBufferedEvents    = Namespace + "bufferedEvents"
	KeySequenceID        = Namespace + "sequenceId"
)

// Store is a synchronous string key value store. Get returns an empty
// string for missing keys.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// GetJSON decodes the value under key into v. It reports false when the
// key is missing.
func GetJSON(s Store, key string, v any) (bool, error) {
	raw, err := s.Get(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.Set(key, string(raw)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// MemoryStore keeps values in process memory. The zero value is ready
// to use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (m *MemoryStore) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
