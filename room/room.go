// room/room.go
package room

import (
	"sync"
	"time"

	"github.com/wfunc/bullscows/session"
)

// Group 是一个房间的连接组。它只管理连接，房间状态在存储里；
// 连接断开只会离开组，不影响游戏。
type Group struct {
	ID        string
	Players   map[string]*session.Session // sessionID -> session
	CreatedAt time.Time
	mutex     sync.RWMutex
}

func NewGroup(id string) *Group {
	return &Group{
		ID:        id,
		Players:   make(map[string]*session.Session),
		CreatedAt: time.Now(),
	}
}

// AddSession 添加一个连接到组
func (g *Group) AddSession(s *session.Session) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.Players[s.ID] = s
}

// RemoveSession 从组移除一个连接，返回剩余连接数
func (g *Group) RemoveSession(sessionID string) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	delete(g.Players, sessionID)
	return len(g.Players)
}

// GetSessions returns a snapshot of all sessions in the group (thread-safe).
func (g *Group) GetSessions() []*session.Session {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	sessions := make([]*session.Session, 0, len(g.Players))
	for _, s := range g.Players {
		sessions = append(sessions, s)
	}
	return sessions
}

func (g *Group) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.Players)
}

// --- 房间管理器 ---

// Manager 管理所有房间连接组，组在第一个连接加入时创建，最后一个离开时删除
type Manager struct {
	groups map[string]*Group
	mutex  sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		groups: make(map[string]*Group),
	}
}

// Join 把连接加入它所在房间的组
func (m *Manager) Join(s *session.Session) *Group {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	g, exists := m.groups[s.RoomID]
	if !exists {
		g = NewGroup(s.RoomID)
		m.groups[s.RoomID] = g
	}
	g.AddSession(s)
	return g
}

// Leave 把连接移出组，组空了就删除
func (m *Manager) Leave(s *session.Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	g, exists := m.groups[s.RoomID]
	if !exists {
		return
	}
	if g.RemoveSession(s.ID) == 0 {
		delete(m.groups, s.RoomID)
	}
}

// GetRoom 获取一个房间的连接组
func (m *Manager) GetRoom(id string) (*Group, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	g, exists := m.groups[id]
	return g, exists
}

// Count returns the number of rooms with at least one connection.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.groups)
}
