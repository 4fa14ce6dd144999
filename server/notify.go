package server

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/bullscows/broadcast"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/network"
)

// roomNotifier delivers arbitrator timeout events to the room's connections.
type roomNotifier struct {
	s *GameServer
}

func (n *roomNotifier) TurnExpiring(ctx context.Context, roomID, message string) {
	n.s.publish(roomID, network.Text(network.MsgTurnTimeout, message))
}

func (n *roomNotifier) TurnSkipped(ctx context.Context, roomID, message string) {
	n.s.publish(roomID, network.Text(network.MsgTurnTimeout, message))
	n.s.refreshAll(ctx, roomID)
}

// strategyPublisher sends a team board to that team's connections only.
type strategyPublisher struct {
	b broadcast.Broadcaster
}

func (p *strategyPublisher) PublishStrategy(ctx context.Context, roomID string, playerIDs []string, doc *models.TeamStrategy) {
	err := p.b.PublishToPlayers(roomID, playerIDs, network.Event(network.MsgTeamStrategyUpdate, doc))
	if err != nil && !errors.Is(err, broadcast.ErrRoomNotFound) {
		logger.Log.Warnf("publish strategy of room %s: %v", roomID, err)
	}
}

// A room without connections has no group; that is not an error.
func (s *GameServer) logPublishError(roomID string, err error) {
	if errors.Is(err, broadcast.ErrRoomNotFound) {
		return
	}
	logger.Log.Warnf("publish to room %s: %v", roomID, err)
}

// onFinished records metrics and archives the game once a room enters FINISHED.
func (s *GameServer) onFinished(ctx context.Context, roomID string) {
	v, err := s.lobby.View(ctx, roomID)
	if err != nil {
		logger.Log.Errorf("finished room %s: %v", roomID, err)
		return
	}
	record := buildRecord(v.Room, v.Players, v.Guesses, s.now().UTC())
	s.monitor.ObserveGameFinished(record.Duration)

	if s.archive == nil {
		return
	}
	if err := s.archive.SaveGameRecord(ctx, record); err != nil {
		logger.Log.Errorf("archive room %s: %v", roomID, err)
		return
	}
	logger.Log.Infof("房间 %s 对局已归档，胜者 %s", roomID, record.WinnerID)
}

func buildRecord(room *models.Room, players []*models.Player, guesses []*models.Guess, finishedAt time.Time) *models.GameRecord {
	rec := &models.GameRecord{
		RoomID:    room.ID,
		RoomName:  room.Name,
		Guesses:   len(guesses),
		Duration:  finishedAt.Sub(room.CreatedAt),
		CreatedAt: finishedAt,
	}
	perPlayer := make(map[string]int, len(players))
	for _, g := range guesses {
		perPlayer[g.PlayerID]++
	}
	for _, p := range players {
		if p.IsWinner {
			rec.WinnerID = p.ID
			rec.WinnerTeam = p.Team
		}
	}
	for _, p := range players {
		outcome := "lose"
		if rec.WinnerTeam.Valid() && p.Team == rec.WinnerTeam {
			outcome = "win"
		}
		rec.Players = append(rec.Players, models.PlayerInfo{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Team:        p.Team,
			Outcome:     outcome,
			Guesses:     perPlayer[p.ID],
		})
	}
	return rec
}
