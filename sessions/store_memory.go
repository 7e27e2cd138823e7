package sessions

import (
	"sync"

	"github.com/laagencias/go-panel-auth/users"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	session Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (ms *MemoryStore) SetTokens(accessToken, refreshToken string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.session.AccessToken = accessToken
	ms.session.RefreshToken = refreshToken
	return nil
}

func (ms *MemoryStore) AccessToken() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.session.AccessToken
}

func (ms *MemoryStore) RefreshToken() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.session.RefreshToken
}

func (ms *MemoryStore) SetUser(user *users.User) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.session.User = user
	return nil
}

func (ms *MemoryStore) User() *users.User {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.session.User
}

func (ms *MemoryStore) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.session = Session{}
	return nil
}
