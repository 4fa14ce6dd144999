// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/bullscows/network"
)

// outboxSize 每个连接最多积压的帧数，超过就断开这个连接
const outboxSize = 64

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSlowClient    = errors.New("client too slow, connection dropped")
)

// Session is one attached websocket connection of a player in a room.
type Session struct {
	ID         string
	Conn       network.Connection
	PlayerID   string
	RoomID     string
	CreatedAt  time.Time
	lastActive time.Time
	mutex      sync.RWMutex

	outbox    chan []byte
	queued    bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func NewSession(id string, conn network.Connection, roomID, playerID string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		RoomID:     roomID,
		PlayerID:   playerID,
		CreatedAt:  now,
		lastActive: now,
		outbox:     make(chan []byte, outboxSize),
		done:       make(chan struct{}),
	}
}

// Start 启动写协程，之后 Send 只入队不阻塞。未 Start 的连接直接同步写。
func (s *Session) Start() {
	s.mutex.Lock()
	if s.queued {
		s.mutex.Unlock()
		return
	}
	s.queued = true
	s.mutex.Unlock()
	go s.writeLoop()
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.outbox:
			if err := s.Conn.Send(data); err != nil {
				s.Close()
				return
			}
		}
	}
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

// Send 写一帧。写协程运行时只入队，队列满说明客户端跟不上，直接断开，
// 读循环随之退出并清理连接，不拖慢房间里的其他人。
func (s *Session) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	s.mutex.RLock()
	queued := s.queued
	s.mutex.RUnlock()
	if !queued {
		return s.Conn.Send(data)
	}

	select {
	case s.outbox <- data:
		return nil
	default:
		s.Close()
		return ErrSlowClient
	}
}

// SendEvent 编码后发给这一个连接
func (s *Session) SendEvent(msg network.Outbound) error {
	data, err := network.Encode(msg)
	if err != nil {
		return err
	}
	return s.Send(data)
}

func (s *Session) GetID() string {
	return s.ID
}

// Close 停止写协程并关闭连接，可重复调用
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
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

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
