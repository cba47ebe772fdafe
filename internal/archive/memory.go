package archive

import (
	"context"
	"sync"

	"statchat/pkg/domain"
)

// MemoryTranscriptStore keeps transcripts in process memory. Suitable for
// tests and database-less deployments.
type MemoryTranscriptStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.Message
}

// NewMemoryTranscriptStore builds an empty store.
func NewMemoryTranscriptStore() *MemoryTranscriptStore {
	return &MemoryTranscriptStore{sessions: make(map[string][]domain.Message)}
}

// Append stores the messages for the session.
func (s *MemoryTranscriptStore) Append(_ context.Context, sessionID string, msgs ...domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}

// List returns the most recent messages in chronological order. limit <= 0
// means no limit.
func (s *MemoryTranscriptStore) List(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
