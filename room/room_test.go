package room

import (
	"errors"
	"sync"
	"testing"
)

// MockMember records what it was sent.
type MockMember struct {
	id   string
	fail bool
	mu   sync.Mutex
	got  []uint16
}

func newMember(id string) *MockMember { return &MockMember{id: id} }

func (m *MockMember) GetID() string { return m.id }

func (m *MockMember) Send(msgID uint16, data []byte) error {
	if m.fail {
		return errors.New("broken pipe")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, msgID)
	return nil
}

func (m *MockMember) Received() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

func TestNewRoom(t *testing.T) {
	room := NewRoom("tavern", 0)
	if room.GetID() != "tavern" {
		t.Errorf("Expected room ID to be 'tavern', got '%s'", room.GetID())
	}
	if room.Len() != 0 {
		t.Errorf("Expected an empty room, got %d members", room.Len())
	}
}

func TestRoom_AddMember_Full(t *testing.T) {
	room := NewRoom("tavern", 1)
	if !room.AddMember(newMember("a")) {
		t.Fatal("Failed to add the first member")
	}
	if !room.AddMember(newMember("a")) {
		t.Fatal("Re-adding an existing member should succeed")
	}
	if room.AddMember(newMember("b")) {
		t.Fatal("Should not be able to add a member to a full room")
	}
	if room.Len() != 1 {
		t.Errorf("Expected member count to be 1, got %d", room.Len())
	}
}

func TestRoom_Broadcast(t *testing.T) {
	room := NewRoom("tavern", 0)
	a, b := newMember("a"), newMember("b")
	broken := &MockMember{id: "c", fail: true}
	room.AddMember(a)
	room.AddMember(b)
	room.AddMember(broken)

	if failed := room.Broadcast(502, []byte("{}")); failed != 1 {
		t.Errorf("Expected 1 failed send, got %d", failed)
	}
	if a.Received() != 1 || b.Received() != 1 {
		t.Errorf("Expected each healthy member to receive once, got %d and %d", a.Received(), b.Received())
	}
}

func TestManager_JoinMovesMember(t *testing.T) {
	m := NewRoomManager(0)
	a := newMember("a")

	m.Join("tavern", a)
	m.Join("forest", a)

	if _, exists := m.GetRoom("tavern"); exists {
		t.Error("Expected the empty tavern to be removed")
	}
	room, exists := m.GetRoom("forest")
	if !exists || room.Len() != 1 {
		t.Fatal("Expected the member in the forest")
	}
	if ch, _ := m.ChannelOf("a"); ch != "forest" {
		t.Errorf("Expected channel 'forest', got '%s'", ch)
	}

	m.Leave("a")
	if m.Count() != 0 {
		t.Errorf("Expected no rooms after leaving, got %d", m.Count())
	}
	if _, ok := m.ChannelOf("a"); ok {
		t.Error("Expected member to be in no channel")
	}
}

func TestManager_JoinFull(t *testing.T) {
	m := NewRoomManager(1)
	if !m.Join("tavern", newMember("a")) {
		t.Fatal("Expected first join to succeed")
	}
	if m.Join("tavern", newMember("b")) {
		t.Fatal("Expected join of a full channel to fail")
	}
	if _, ok := m.ChannelOf("b"); ok {
		t.Error("Rejected member should not be tracked")
	}
}
