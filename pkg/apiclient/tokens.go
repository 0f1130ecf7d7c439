package apiclient

import "sync"

// TokenStore is the single source of credentials for every outbound call.
type TokenStore interface {
	Access() string
	Refresh() string
	SetAccess(access string)
	Set(access, refresh string)
	Clear()
}

type MemoryTokens struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func NewMemoryTokens(access, refresh string) *MemoryTokens {
	return &MemoryTokens{access: access, refresh: refresh}
}

func (m *MemoryTokens) Access() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

func (m *MemoryTokens) Refresh() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh
}

func (m *MemoryTokens) SetAccess(access string) {
	m.mu.Lock()
	m.access = access
	m.mu.Unlock()
}

func (m *MemoryTokens) Set(access, refresh string) {
	m.mu.Lock()
	m.access, m.refresh = access, refresh
	m.mu.Unlock()
}

func (m *MemoryTokens) Clear() {
	m.Set("", "")
}
