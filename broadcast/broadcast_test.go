package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/drawguess/network"
	"github.com/wfunc/drawguess/session"
)

type sent struct {
	msgID uint16
	data  string
}

type MockConnection struct {
	mu   sync.Mutex
	sent []sent
	fail bool
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broken pipe")
	}
	m.sent = append(m.sent, sent{msgID, string(data)})
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (m *MockConnection) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func setup(ids ...string) (*RoomBroadcaster, map[string]*MockConnection) {
	manager := session.NewManager()
	conns := map[string]*MockConnection{}
	for _, id := range ids {
		c := &MockConnection{}
		conns[id] = c
		manager.Add(session.NewSession(id, c))
	}
	return NewRoomBroadcaster(manager, nil), conns
}

func TestRoomBroadcaster_ToRoom(t *testing.T) {
	b, conns := setup("s1", "s2", "s3")
	b.Join("room", "s1")
	b.Join("room", "s2")

	if err := b.ToRoom("room", network.MsgTypeRoomDeleted, network.RoomDeleted{RoomID: "room"}); err != nil {
		t.Fatalf("ToRoom failed: %v", err)
	}
	if conns["s1"].count() != 1 || conns["s2"].count() != 1 {
		t.Error("Expected both members to receive the packet")
	}
	if conns["s3"].count() != 0 {
		t.Error("Non-member should not receive room packets")
	}
	if got := conns["s1"].sent[0].data; got != `{"roomId":"room"}` {
		t.Errorf("Unexpected payload %s", got)
	}
}

func TestRoomBroadcaster_ToRoomExcept(t *testing.T) {
	b, conns := setup("s1", "s2")
	b.Join("room", "s1")
	b.Join("room", "s2")

	b.ToRoomExcept("room", "s1", network.MsgTypeUserJoined, network.UserJoined{RoomID: "room"})
	if conns["s1"].count() != 0 {
		t.Error("Sender should be excluded")
	}
	if conns["s2"].count() != 1 {
		t.Error("Other members should receive the packet")
	}
}

func TestRoomBroadcaster_FailedSendContinues(t *testing.T) {
	b, conns := setup("s1", "s2")
	conns["s1"].fail = true
	b.Join("room", "s1")
	b.Join("room", "s2")

	if err := b.ToRoom("room", network.MsgTypeRoomDeleted, network.RoomDeleted{}); err != nil {
		t.Fatalf("A broken member should not fail the broadcast, got %v", err)
	}
	if conns["s2"].count() != 1 {
		t.Error("Healthy member should still receive the packet")
	}
}

func TestRoomBroadcaster_ToSession(t *testing.T) {
	b, conns := setup("s1")

	if err := b.ToSession("s1", network.MsgTypeWordToDraw, network.WordToDraw{Word: "cat"}); err != nil {
		t.Fatalf("ToSession failed: %v", err)
	}
	if conns["s1"].count() != 1 || conns["s1"].sent[0].msgID != network.MsgTypeWordToDraw {
		t.Errorf("Expected word_to_draw, got %+v", conns["s1"].sent)
	}
	if err := b.ToSession("ghost", network.MsgTypeWordToDraw, nil); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestRoomBroadcaster_Groups(t *testing.T) {
	b, _ := setup()
	b.Join("a", "s1")
	b.Join("a", "s2")
	b.Join("b", "s3")
	if b.GroupCount() != 2 {
		t.Fatalf("Expected 2 groups, got %d", b.GroupCount())
	}

	b.Leave("a", "s1")
	if len(b.Members("a")) != 1 {
		t.Errorf("Expected 1 member left in a, got %v", b.Members("a"))
	}
	b.Leave("b", "s3")
	if b.GroupCount() != 1 {
		t.Errorf("Empty group should be dropped, got %d groups", b.GroupCount())
	}
	b.DeleteGroup("a")
	if b.GroupCount() != 0 {
		t.Errorf("Expected no groups, got %d", b.GroupCount())
	}
}
