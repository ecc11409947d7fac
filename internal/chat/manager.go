package chat

import (
	"sync"

	"github.com/chatrelay/chatrelay/internal/ai"
	"github.com/chatrelay/chatrelay/internal/transcript"
)

const DefaultHistoryLimit = 10

// Manager hands out exactly one Session per identifier, which is what keeps
// the single-writer-per-transcript assumption true under concurrent requests.
type Manager struct {
	store    transcript.Store
	provider ai.Provider
	opts     ai.Options
	limit    int
	events   EventPublisher

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store transcript.Store, provider ai.Provider, opts ai.Options, historyLimit int, events EventPublisher) *Manager {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Manager{
		store:    store,
		provider: provider,
		opts:     opts,
		limit:    historyLimit,
		events:   events,
		sessions: make(map[string]*Session),
	}
}

// Session returns the singleton session for id, materializing it lazily.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := newSession(id, m.store, m.provider, m.opts, m.limit, m.events)
	m.sessions[id] = s
	return s
}

// Options returns the manager's base generation settings, for the stateless
// chat path to overlay per-request overrides on.
func (m *Manager) Options() ai.Options { return m.opts }

// Provider exposes the configured gateway for the stateless chat path.
func (m *Manager) Provider() ai.Provider { return m.provider }
