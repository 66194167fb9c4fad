package session

import (
	"errors"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/dharmasatrya/skysearch/internal/providers"
)

var ErrSessionNotFound = errors.New("session not found")

const DefaultMaxSessions = 1000

// Manager is a bounded registry of sessions. When full, the least recently
// used session is evicted and closed.
type Manager struct {
	sessions *lru.Cache[string, *Session]
	searcher Searcher
	checker  providers.PriceChecker
	logger   *zap.Logger
}

func NewManager(maxSessions int, searcher Searcher, checker providers.PriceChecker, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	c, err := lru.NewWithEvict[string, *Session](maxSessions, func(id string, s *Session) {
		s.Close()
		logger.Debug("session closed", zap.String("session_id", id))
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		sessions: c,
		searcher: searcher,
		checker:  checker,
		logger:   logger,
	}, nil
}

func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.searcher, m.checker, m.logger)
	m.sessions.Add(s.ID(), s)
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and forgets the session.
func (m *Manager) Delete(id string) error {
	if !m.sessions.Remove(id) {
		return ErrSessionNotFound
	}
	return nil
}

func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Close closes every session.
func (m *Manager) Close() {
	m.sessions.Purge()
}
