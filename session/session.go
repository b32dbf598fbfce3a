// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/roundtable/network"
)

// Session is one client connection and the identity it announced.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	userID     string
	guildID    string
	isDM       bool
	channelID  string
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

// Identify binds the platform user to the session.
func (s *Session) Identify(userID, guildID string, isDM bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.userID = userID
	s.guildID = guildID
	s.isDM = isDM
}

func (s *Session) UserID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.userID
}

func (s *Session) GuildID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.guildID
}

func (s *Session) IsDM() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isDM
}

func (s *Session) ChannelID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.channelID
}

func (s *Session) SetChannelID(channelID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.channelID = channelID
}

func (s *Session) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) SendJSON(msgID uint16, v interface{}) error {
	s.Touch()
	return network.SendJSON(s.Conn, msgID, v)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// GetByUserID returns every session the user is connected with.
func (m *Manager) GetByUserID(userID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID() == userID {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every connection; their read loops then clean up.
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
