package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/drawguess/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mu     sync.Mutex
	sent   []uint16
	closed bool
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	// Test Add
	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	// Test Get
	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	// Test Remove
	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByPlayerID(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.PlayerID = "alice"

	sess2 := NewSession("session2", &MockConnection{})
	sess2.PlayerID = "bob"

	sess3 := NewSession("session3", &MockConnection{})
	sess3.PlayerID = "alice"

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	if got := len(manager.GetByPlayerID("alice")); got != 2 {
		t.Errorf("Expected 2 sessions for alice, got %d", got)
	}
	if got := len(manager.GetByPlayerID("bob")); got != 1 {
		t.Errorf("Expected 1 session for bob, got %d", got)
	}
	if got := len(manager.GetByPlayerID("carol")); got != 0 {
		t.Errorf("Expected 0 sessions for carol, got %d", got)
	}
}

func TestManager_CloseAll(t *testing.T) {
	manager := NewManager()
	conns := []*MockConnection{{}, {}}
	manager.Add(NewSession("s1", conns[0]))
	manager.Add(NewSession("s2", conns[1]))

	manager.CloseAll()
	for i, c := range conns {
		if !c.closed {
			t.Errorf("Expected connection %d to be closed", i)
		}
	}
}

func TestSession_RoomID(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})
	if sess.RoomID() != "" {
		t.Errorf("Expected no room, got %q", sess.RoomID())
	}
	sess.SetRoomID("room-1")
	if sess.RoomID() != "room-1" {
		t.Errorf("Expected room-1, got %q", sess.RoomID())
	}
}

func TestSession_SendTouches(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("test_session", conn)
	before := sess.LastActive()
	time.Sleep(2 * time.Millisecond)

	if err := sess.Send(network.MsgTypeUserJoined, nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !sess.LastActive().After(before) {
		t.Error("Expected Send to refresh LastActive")
	}
	if len(conn.sent) != 1 || conn.sent[0] != network.MsgTypeUserJoined {
		t.Errorf("Expected one user_joined packet, got %v", conn.sent)
	}
}

func TestSession_RateLimit(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})
	for i := 0; i < 100; i++ {
		if !sess.Allow() {
			t.Fatal("A session without a limit should allow everything")
		}
	}

	sess.SetRateLimit(1, 3)
	allowed := 0
	for i := 0; i < 10; i++ {
		if sess.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("Expected the burst of 3 to pass, got %d", allowed)
	}
}
