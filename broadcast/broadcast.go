// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"sync"

	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/monitor"
	"github.com/wfunc/drawguess/network"
	"github.com/wfunc/drawguess/session"
)

var (
	ErrSessionNotFound = errors.New("broadcast: session not found")
)

// 广播接口
type Broadcaster interface {
	ToRoom(roomID string, msgID uint16, payload interface{}) error
	ToRoomExcept(roomID, exceptSessionID string, msgID uint16, payload interface{}) error
	ToSession(sessionID string, msgID uint16, payload interface{}) error
	Join(roomID, sessionID string)
	Leave(roomID, sessionID string)
	DeleteGroup(roomID string)
}

// RoomBroadcaster keeps roomID -> session ids for this process and sends
// through the session manager. A failed send to one member never stops
// delivery to the rest.
type RoomBroadcaster struct {
	sessionManager *session.Manager
	monitor        *monitor.Monitor

	mutex  sync.RWMutex
	groups map[string]map[string]struct{}
}

func NewRoomBroadcaster(sessionManager *session.Manager, mon *monitor.Monitor) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
		monitor:        mon,
		groups:         make(map[string]map[string]struct{}),
	}
}

func (b *RoomBroadcaster) Join(roomID, sessionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	g, ok := b.groups[roomID]
	if !ok {
		g = make(map[string]struct{})
		b.groups[roomID] = g
	}
	g[sessionID] = struct{}{}
}

func (b *RoomBroadcaster) Leave(roomID, sessionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	g, ok := b.groups[roomID]
	if !ok {
		return
	}
	delete(g, sessionID)
	if len(g) == 0 {
		delete(b.groups, roomID)
	}
}

func (b *RoomBroadcaster) DeleteGroup(roomID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.groups, roomID)
}

// Members returns a copy of the room's session ids.
func (b *RoomBroadcaster) Members(roomID string) []string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	ids := make([]string, 0, len(b.groups[roomID]))
	for id := range b.groups[roomID] {
		ids = append(ids, id)
	}
	return ids
}

func (b *RoomBroadcaster) GroupCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.groups)
}

func (b *RoomBroadcaster) ToRoom(roomID string, msgID uint16, payload interface{}) error {
	return b.ToRoomExcept(roomID, "", msgID, payload)
}

func (b *RoomBroadcaster) ToRoomExcept(roomID, exceptSessionID string, msgID uint16, payload interface{}) error {
	data, err := network.Encode(payload)
	if err != nil {
		return err
	}
	for _, id := range b.Members(roomID) {
		if id == exceptSessionID {
			continue
		}
		b.send(id, msgID, data)
	}
	return nil
}

func (b *RoomBroadcaster) ToSession(sessionID string, msgID uint16, payload interface{}) error {
	data, err := network.Encode(payload)
	if err != nil {
		return err
	}
	if _, ok := b.sessionManager.Get(sessionID); !ok {
		return ErrSessionNotFound
	}
	return b.send(sessionID, msgID, data)
}

func (b *RoomBroadcaster) send(sessionID string, msgID uint16, data []byte) error {
	s, ok := b.sessionManager.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.Send(msgID, data); err != nil {
		// 发送失败的连接由读循环负责清理
		logger.Log.Debugw("send failed", "session", sessionID, "msg", network.MsgName(msgID), "error", err)
		return err
	}
	b.monitor.IncMessagesSent(network.MsgName(msgID))
	return nil
}
