package keycache

import (
	"context"
	"sync"
	"time"

	"keygate/internal/domain"
)

type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
	clients map[string]string
}

type memoryEntry struct {
	record    domain.KeyRecord
	expiresAt time.Time
	hasExpiry bool
}

func NewMemory() *Memory {
	return NewMemoryWithClock(nil)
}

func NewMemoryWithClock(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:     now,
		entries: make(map[string]memoryEntry),
		clients: make(map[string]string),
	}
}

func (m *Memory) Get(_ context.Context, identity string) (*domain.KeyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[identity]
	if !ok {
		return nil, false, nil
	}
	if entry.hasExpiry && m.now().After(entry.expiresAt) {
		delete(m.entries, identity)
		if m.clients[entry.record.ClientID] == identity {
			delete(m.clients, entry.record.ClientID)
		}
		return nil, false, nil
	}
	record := entry.record
	return &record, true, nil
}

func (m *Memory) Put(_ context.Context, record domain.KeyRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{record: record}
	if ttl > 0 {
		entry.hasExpiry = true
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[record.Identity] = entry
	m.clients[record.ClientID] = record.Identity
	return nil
}

func (m *Memory) Evict(_ context.Context, clientID, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity != "" {
		delete(m.entries, identity)
	}
	if linked, ok := m.clients[clientID]; ok {
		delete(m.entries, linked)
		delete(m.clients, clientID)
	}
	return nil
}

// Len is the number of cached identities, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ Cache = (*Memory)(nil)
