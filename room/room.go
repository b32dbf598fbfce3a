// room/room.go
package room

import (
	"sync"
	"time"
)

// Room 是一个频道内在线连接的集合, keyed by the platform channel id
type Room struct {
	ID         string
	MaxMembers int
	CreatedAt  time.Time
	members    map[string]Member // sessionID -> member
	mutex      sync.RWMutex
}

// NewRoom 创建一个频道. maxMembers <= 0 means unlimited.
func NewRoom(id string, maxMembers int) *Room {
	return &Room{
		ID:         id,
		MaxMembers: maxMembers,
		CreatedAt:  time.Now(),
		members:    make(map[string]Member),
	}
}

func (r *Room) GetID() string {
	return r.ID
}

// AddMember 添加连接, false when the room is full
func (r *Room) AddMember(m Member) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.members[m.GetID()]; exists {
		return true
	}
	if r.MaxMembers > 0 && len(r.members) >= r.MaxMembers {
		return false
	}
	r.members[m.GetID()] = m
	return true
}

// RemoveMember returns how many members remain.
func (r *Room) RemoveMember(id string) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.members, id)
	return len(r.members)
}

func (r *Room) GetMember(id string) (Member, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	m, exists := r.members[id]
	return m, exists
}

// Members returns a copy of the current members.
func (r *Room) Members() []Member {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	members := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	return members
}

func (r *Room) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.members)
}

// Broadcast sends to every member and returns how many sends failed.
func (r *Room) Broadcast(msgID uint16, data []byte) int {
	failed := 0
	for _, m := range r.Members() {
		if err := m.Send(msgID, data); err != nil {
			failed++
		}
	}
	return failed
}

// --- 频道管理器 ---

// Manager 管理所有频道; a member is in at most one channel
type Manager struct {
	rooms      map[string]*Room
	memberOf   map[string]string // member id -> room id
	maxMembers int
	mutex      sync.RWMutex
}

func NewRoomManager(maxMembers int) *Manager {
	return &Manager{
		rooms:      make(map[string]*Room),
		memberOf:   make(map[string]string),
		maxMembers: maxMembers,
	}
}

// Join moves m into the channel, leaving any previous one. The room is
// created on first join.
func (m *Manager) Join(channelID string, member Member) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if prev, ok := m.memberOf[member.GetID()]; ok && prev != channelID {
		m.leaveLocked(prev, member.GetID())
	}

	room, exists := m.rooms[channelID]
	if !exists {
		room = NewRoom(channelID, m.maxMembers)
		m.rooms[channelID] = room
	}
	if !room.AddMember(member) {
		if room.Len() == 0 {
			delete(m.rooms, channelID)
		}
		return false
	}
	m.memberOf[member.GetID()] = channelID
	return true
}

// Leave removes the member from whatever channel it is in.
func (m *Manager) Leave(memberID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if channelID, ok := m.memberOf[memberID]; ok {
		m.leaveLocked(channelID, memberID)
	}
}

func (m *Manager) leaveLocked(channelID, memberID string) {
	delete(m.memberOf, memberID)
	if room, exists := m.rooms[channelID]; exists {
		if room.RemoveMember(memberID) == 0 {
			delete(m.rooms, channelID)
		}
	}
}

func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	room, exists := m.rooms[id]
	return room, exists
}

// ChannelOf returns the channel the member is in.
func (m *Manager) ChannelOf(memberID string) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	channelID, ok := m.memberOf[memberID]
	return channelID, ok
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}
