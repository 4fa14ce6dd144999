package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/network"
	"github.com/wfunc/bullscows/session"
	"github.com/wfunc/bullscows/strategy"
	"github.com/wfunc/bullscows/visibility"
)

const heartbeatInterval = 30 * time.Second

// handleWebSocket attaches a player to a room: GET /ws/{roomID}?player_id=...
// The player must have joined over HTTP first.
func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	playerID := r.URL.Query().Get("player_id")

	player, err := s.lobby.Attach(r.Context(), roomID, playerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.NewString(), wsConn, roomID, player.ID)
	s.handleConnection(sess)
}

func (s *GameServer) handleConnection(sess *session.Session) {
	sess.Start()
	s.sessionManager.Add(sess)
	s.roomManager.Join(sess)
	s.monitor.IncOnlineSessions()
	s.monitor.SetActiveRooms(s.roomManager.Count())

	logger.Log.Infof("New connection from %s, session ID: %s, room %s, player %s",
		sess.Conn.RemoteAddr(), sess.GetID(), sess.RoomID, sess.PlayerID)

	done := make(chan struct{})
	defer func() {
		close(done)
		logger.Log.Infof("Connection closed from %s, session ID: %s", sess.Conn.RemoteAddr(), sess.GetID())
		// 断线只离开连接组，不影响房间状态
		s.roomManager.Leave(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineSessions()
		s.monitor.SetActiveRooms(s.roomManager.Count())
		sess.Close()
	}()

	sess.Conn.SetHeartbeat(heartbeatInterval)
	go s.keepAlive(sess, done)

	ctx := context.Background()
	s.refresh(ctx, sess)

	for {
		data, err := sess.Conn.ReadMessage()
		if err != nil {
			return
		}
		sess.Touch()
		s.handleMessage(ctx, sess, data)
	}
}

// keepAlive pings the connection and closes it on server shutdown, which
// unblocks the read loop.
func (s *GameServer) keepAlive(sess *session.Session, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.shutdownChan:
			sess.Close()
			return
		case <-ticker.C:
			if err := sess.Conn.Ping(); err != nil {
				sess.Close()
				return
			}
		}
	}
}

func (s *GameServer) handleMessage(ctx context.Context, sess *session.Session, data []byte) {
	start := time.Now()
	in, err := network.Decode(data)
	if err != nil {
		s.monitor.IncMessagesReceived("invalid")
		s.reply(sess, network.Text(network.MsgGameMessage, "Invalid message"))
		return
	}
	s.monitor.IncMessagesReceived(in.Type)
	defer func() { s.monitor.ObserveMessageLatency(time.Since(start)) }()

	switch in.Type {
	case network.MsgSetSecretNumber:
		if _, err := s.arbiter.SetSecret(ctx, sess.RoomID, sess.PlayerID, in.Number); err != nil {
			s.replyError(sess, err, "Failed to set secret number")
			return
		}
		// 队友也要立刻看到本队密码
		s.refreshAll(ctx, sess.RoomID)

	case network.MsgMakeGuess:
		if _, err := s.arbiter.SubmitGuess(ctx, sess.RoomID, sess.PlayerID, in.Guess, in.TargetPlayerID); err != nil {
			s.replyError(sess, err, "Failed to make guess")
			return
		}
		s.refresh(ctx, sess)

	case network.MsgGetRoomState:
		s.refresh(ctx, sess)

	case network.MsgGetTeamStrategy:
		doc, err := s.boards.Get(ctx, sess.RoomID, sess.PlayerID)
		if err != nil {
			s.replyError(sess, err, "Failed to load team strategy")
			return
		}
		s.reply(sess, network.Event(network.MsgTeamStrategyInit, doc))

	case network.MsgUpdateTeamStrategy:
		doc, err := s.boards.Update(ctx, sess.RoomID, sess.PlayerID, strategy.UpdateRequest{
			Version:    in.Version,
			Notes:      in.Notes,
			SlotDigits: in.SlotDigits,
			DraftGuess: in.DraftGuess,
		})
		if errors.Is(err, game.ErrVersionConflict) && doc != nil {
			s.reply(sess, network.Event(network.MsgTeamStrategyConflict, doc))
			return
		}
		if err != nil {
			s.replyError(sess, err, "Failed to update team strategy")
		}
		// 成功时由 strategyPublisher 发给整队

	case network.MsgChangeTeam:
		if _, err := s.lobby.ChangeTeam(ctx, sess.RoomID, sess.PlayerID, in.Team); err != nil {
			s.replyError(sess, err, "Failed to change team")
			return
		}
		// 换队改变了每个人能看到的密码
		s.refreshAll(ctx, sess.RoomID)

	default:
		logger.Log.Infof("Unknown message type: %s", in.Type)
		s.reply(sess, network.Text(network.MsgGameMessage, "Unknown message type"))
	}
}

func (s *GameServer) reply(sess *session.Session, msg network.Outbound) {
	if err := s.broadcaster.Send(sess.GetID(), msg); err != nil {
		logger.Log.Debugf("send %s to session %s: %v", msg.Type, sess.GetID(), err)
	}
}

func (s *GameServer) replyError(sess *session.Session, err error, fallback string) {
	var re *game.RejectError
	if !errors.As(err, &re) {
		logger.Log.Errorf("room %s player %s: %v", sess.RoomID, sess.PlayerID, err)
	}
	s.reply(sess, network.Text(network.MsgGameMessage, game.Message(err, fallback)))
}

// refresh publishes the generic snapshot to the room and the personalized
// one to sess only.
func (s *GameServer) refresh(ctx context.Context, sess *session.Session) {
	v, err := s.lobby.View(ctx, sess.RoomID)
	if err != nil {
		logger.Log.Warnf("snapshot of room %s: %v", sess.RoomID, err)
		return
	}
	s.publish(sess.RoomID, network.Event(network.MsgRoomStateUpdate, visibility.Generic(v)))
	s.reply(sess, network.Event(network.MsgRoomStateUpdate, visibility.Personalized(v, sess.PlayerID)))
}

// refreshAll sends every connection of the room its own personalized snapshot.
func (s *GameServer) refreshAll(ctx context.Context, roomID string) {
	v, err := s.lobby.View(ctx, roomID)
	if err != nil {
		logger.Log.Warnf("snapshot of room %s: %v", roomID, err)
		return
	}
	err = s.broadcaster.PublishPersonalized(roomID, func(playerID string) (network.Outbound, error) {
		return network.Event(network.MsgRoomStateUpdate, visibility.Personalized(v, playerID)), nil
	})
	if err != nil {
		s.logPublishError(roomID, err)
	}
}

func (s *GameServer) publishGeneric(ctx context.Context, roomID string) {
	v, err := s.lobby.View(ctx, roomID)
	if err != nil {
		logger.Log.Warnf("snapshot of room %s: %v", roomID, err)
		return
	}
	s.publish(roomID, network.Event(network.MsgRoomStateUpdate, visibility.Generic(v)))
}

func (s *GameServer) publish(roomID string, msg network.Outbound) {
	if err := s.broadcaster.Publish(roomID, msg); err != nil {
		s.logPublishError(roomID, err)
	}
}
