// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/network"
	"github.com/wfunc/bullscows/room"
	"github.com/wfunc/bullscows/session"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	// Publish 发给房间内所有连接。只能发不含秘密的内容。
	Publish(roomID string, msg network.Outbound) error
	// Send 只发给一个连接
	Send(sessionID string, msg network.Outbound) error
	// PublishToPlayers 发给房间内属于这些玩家的连接
	PublishToPlayers(roomID string, playerIDs []string, msg network.Outbound) error
	// PublishPersonalized 为每个连接单独构建消息
	PublishPersonalized(roomID string, build func(playerID string) (network.Outbound, error)) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) sessions(roomID string) ([]*session.Session, error) {
	group, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return nil, ErrRoomNotFound
	}
	// Get a thread-safe copy of the sessions
	return group.GetSessions(), nil
}

func (b *RoomBroadcaster) Publish(roomID string, msg network.Outbound) error {
	sessions, err := b.sessions(roomID)
	if err != nil {
		return err
	}
	data, err := network.Encode(msg)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := s.Send(data); err != nil {
			// 发送失败的连接由它自己的读循环清理
			sendFailed(msg.Type, s, err)
		}
	}
	return nil
}

func (b *RoomBroadcaster) Send(sessionID string, msg network.Outbound) error {
	s, exists := b.sessionManager.Get(sessionID)
	if !exists {
		return ErrSessionNotFound
	}
	return s.SendEvent(msg)
}

func (b *RoomBroadcaster) PublishToPlayers(roomID string, playerIDs []string, msg network.Outbound) error {
	sessions, err := b.sessions(roomID)
	if err != nil {
		return err
	}
	wanted := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		wanted[id] = true
	}
	data, err := network.Encode(msg)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if !wanted[s.PlayerID] {
			continue
		}
		if err := s.Send(data); err != nil {
			sendFailed(msg.Type, s, err)
		}
	}
	return nil
}

func (b *RoomBroadcaster) PublishPersonalized(roomID string, build func(playerID string) (network.Outbound, error)) error {
	sessions, err := b.sessions(roomID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		msg, err := build(s.PlayerID)
		if err != nil {
			return err
		}
		if err := s.SendEvent(msg); err != nil {
			sendFailed(msg.Type, s, err)
		}
	}
	return nil
}

func sendFailed(msgType string, s *session.Session, err error) {
	if errors.Is(err, session.ErrSlowClient) {
		logger.Log.Warnf("dropped slow session %s of player %s in room %s", s.ID, s.PlayerID, s.RoomID)
		return
	}
	logger.Log.Debugf("send %s to session %s: %v", msgType, s.ID, err)
}
