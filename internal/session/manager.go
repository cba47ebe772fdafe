package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"statchat/internal/util"
	"statchat/pkg/domain"
)

// Manager keeps live sessions in-process and evicts the ones that have been
// idle past the configured threshold.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	client       AnswerClient
	recorder     Recorder
	defaultModel domain.Model
	idleAfter    time.Duration
}

// ManagerConfig wires the manager's collaborators.
type ManagerConfig struct {
	Client       AnswerClient
	Recorder     Recorder
	DefaultModel domain.Model
	IdleAfter    time.Duration
}

// NewManager builds an empty session registry.
func NewManager(cfg ManagerConfig) *Manager {
	idle := cfg.IdleAfter
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	model := cfg.DefaultModel
	if !model.Known() {
		model = domain.ModelGroq
	}
	return &Manager{
		sessions:     make(map[string]*Session),
		client:       cfg.Client,
		recorder:     cfg.Recorder,
		defaultModel: model,
		idleAfter:    idle,
	}
}

// Create registers a new idle session and returns it.
func (m *Manager) Create() *Session {
	sess := New(util.NewID(), m.defaultModel, m.client, m.recorder)
	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	m.mu.Unlock()
	return sess
}

// Remove drops a session from the registry. Unknown ids are a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Get returns the live session for an id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor evicts idle sessions on the given interval until ctx ends.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted := m.evictIdle(time.Now().UTC())
				if evicted > 0 {
					slog.Info("evicted idle sessions", "count", evicted)
				}
			}
		}
	}()
}

func (m *Manager) evictIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActive()) > m.idleAfter {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}
