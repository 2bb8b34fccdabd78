package cache

import (
	"strings"
	"sync"
	"time"
)

// TTLEntry represents an entry in TTLMap. A zero ExpiresAt never expires.
type TTLEntry struct {
	Value     string
	ExpiresAt time.Time
}

func (e *TTLEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TTLMap is a thread-safe map with a TTL for each entry. Expired entries are
// dropped lazily on access.
type TTLMap struct {
	Data map[string]*TTLEntry
	Mu   sync.RWMutex
	now  func() time.Time
}

func NewTTLMap() *TTLMap {
	return &TTLMap{
		Data: make(map[string]*TTLEntry),
		now:  time.Now,
	}
}

// WithClock replaces the time source, used by tests.
func (m *TTLMap) WithClock(now func() time.Time) *TTLMap {
	m.now = now
	return m
}

// Get retrieves a value from the TTLMap if it hasn't expired
func (m *TTLMap) Get(key string) (string, bool) {
	now := m.now()
	m.Mu.RLock()
	entry, exists := m.Data[key]
	if !exists {
		m.Mu.RUnlock()
		return "", false
	}
	isExpired := entry.expired(now)
	value := entry.Value
	m.Mu.RUnlock()

	if isExpired {
		m.Mu.Lock()
		if current, ok := m.Data[key]; ok && current.expired(m.now()) {
			delete(m.Data, key)
		}
		m.Mu.Unlock()
		return "", false
	}

	return value, true
}

// Set adds or updates a value. ttl <= 0 stores the value without expiry.
func (m *TTLMap) Set(key string, value string, ttl time.Duration) {
	entry := &TTLEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = m.now().Add(ttl)
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Data[key] = entry
}

// Delete removes a key from the TTLMap
func (m *TTLMap) Delete(key string) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	_, ok := m.Data[key]
	delete(m.Data, key)
	return ok
}

// Keys returns the live keys starting with prefix.
func (m *TTLMap) Keys(prefix string) []string {
	now := m.now()
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	keys := make([]string, 0)
	for k, e := range m.Data {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// DeletePrefix removes every key starting with prefix, expired or not, and
// returns how many live keys were removed.
func (m *TTLMap) DeletePrefix(prefix string) int {
	now := m.now()
	m.Mu.Lock()
	defer m.Mu.Unlock()
	removed := 0
	for k, e := range m.Data {
		if strings.HasPrefix(k, prefix) {
			if !e.expired(now) {
				removed++
			}
			delete(m.Data, k)
		}
	}
	return removed
}

// Clear removes all entries from the TTLMap
func (m *TTLMap) Clear() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Data = make(map[string]*TTLEntry)
}
