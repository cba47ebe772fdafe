package store

import (
	"sync"

	"statchat/internal/util"
)

// MemoryTokenStore keeps token mappings in-process. Suitable for single
// instance deployments and tests.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryTokenStore initializes an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string)}
}

// Issue creates a token for a session id.
func (s *MemoryTokenStore) Issue(sessionID string) (string, error) {
	token := util.NewID()
	s.mu.Lock()
	s.tokens[token] = sessionID
	s.mu.Unlock()
	return token, nil
}

// SessionID resolves a token.
func (s *MemoryTokenStore) SessionID(token string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	return id, ok, nil
}

// Revoke removes a token mapping.
func (s *MemoryTokenStore) Revoke(token string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return nil
}
