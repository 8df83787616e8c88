package api

import (
	"sync"

	"github.com/lalith-99/focusroom/internal/room"
)

// SessionManager tracks the one live room session each account has.
// A browser client is in at most one study room at a time, so joining
// a different room implicitly leaves the previous one.
type SessionManager struct {
	mu    sync.Mutex
	byUID map[string]*room.Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{byUID: make(map[string]*room.Session)}
}

func (m *SessionManager) Get(uid string) *room.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byUID[uid]
}

// Swap installs a new session for uid and returns the one it
// displaced, if any. The caller is responsible for leaving the old
// session.
func (m *SessionManager) Swap(uid string, s *room.Session) *room.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.byUID[uid]
	m.byUID[uid] = s
	return old
}

// Remove drops uid's session if it is still the given one.
func (m *SessionManager) Remove(uid string, s *room.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byUID[uid] == s {
		delete(m.byUID, uid)
	}
}
