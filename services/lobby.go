// services/lobby.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/bullscows/config"
	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/persistence"
	"github.com/wfunc/bullscows/state"
	"github.com/wfunc/bullscows/visibility"
)

// LobbyService 房间创建、加入、换队、再来一局
type LobbyService struct {
	store   persistence.Store
	machine *state.Machine
	cfg     config.GameConfig
	now     func() time.Time
	newID   func() string
}

func NewLobbyService(store persistence.Store, machine *state.Machine, cfg config.GameConfig) *LobbyService {
	if machine == nil {
		machine = state.NewLifecycle()
	}
	return &LobbyService{
		store:   store,
		machine: machine,
		cfg:     cfg,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetClock replaces the time source used for room and join timestamps.
func (s *LobbyService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

type CreateRoomRequest struct {
	Name          string `json:"name"`
	MaxPlayers    int    `json:"max_players"`
	TurnTimeLimit int    `json:"turn_time_limit"` // seconds
}

// CreateRoom 创建一个等待中的房间，未给出的设置取默认值
func (s *LobbyService) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Room " + strings.ReplaceAll(s.newID(), "-", "")[:8]
	}
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.cfg.MinPlayers
	}
	if maxPlayers < s.cfg.MinPlayers || maxPlayers > s.cfg.MaxPlayers || maxPlayers%2 != 0 {
		return nil, game.ErrInvalidRoom
	}
	limit := req.TurnTimeLimit
	if limit == 0 {
		limit = int(s.cfg.TurnTimeLimit / time.Second)
	}
	if limit <= 0 {
		return nil, game.ErrInvalidRoom
	}

	room := &models.Room{
		ID:            s.newID(),
		Name:          name,
		Status:        models.StatusWaiting,
		MaxPlayers:    maxPlayers,
		TurnTimeLimit: limit,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	logger.Log.Infof("创建房间 %s (%s) max=%d limit=%ds", room.ID, room.Name, room.MaxPlayers, room.TurnTimeLimit)
	return room, nil
}

// OpenRoom is a lobby listing entry.
type OpenRoom struct {
	*models.Room
	PlayerCount int `json:"player_count"`
}

// ListOpenRooms lists rooms that still accept players or secrets.
func (s *LobbyService) ListOpenRooms(ctx context.Context) ([]OpenRoom, error) {
	rooms, err := s.store.ListRooms(ctx, models.StatusWaiting, models.StatusSettingNumbers)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]OpenRoom, 0, len(rooms))
	for _, r := range rooms {
		players, err := s.store.ListPlayers(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("list players of %s: %w", r.ID, err)
		}
		out = append(out, OpenRoom{Room: r, PlayerCount: len(players)})
	}
	return out, nil
}

type JoinResult struct {
	Player   *models.Player    `json:"player"`
	Status   models.RoomStatus `json:"room_status"`
	Rejoined bool              `json:"rejoined"`
}

// JoinRoom adds displayName to the room, or returns the existing player of
// that name. New players go to the smaller team. A room that becomes full
// while waiting moves on to SETTING_NUMBERS.
func (s *LobbyService) JoinRoom(ctx context.Context, roomID, displayName string) (*JoinResult, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, game.ErrNameRequired
	}

	var res *JoinResult
	err := s.store.WithRoomLock(ctx, roomID, func(tx persistence.Store) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		players, err := tx.ListPlayers(ctx, roomID)
		if err != nil {
			return err
		}

		if existing := byName(players, displayName); existing != nil {
			if !existing.Team.Valid() {
				existing.Team = game.SmallerTeam(players)
				if err := tx.UpdatePlayerTeam(ctx, roomID, existing.ID, existing.Team); err != nil {
					return err
				}
			}
			res = &JoinResult{Player: existing, Status: room.Status, Rejoined: true}
			return nil
		}

		if len(players) >= room.MaxPlayers {
			return game.ErrRoomFull
		}
		if !room.Status.AcceptsSecrets() {
			return game.ErrGameInProgress
		}

		player := &models.Player{
			ID:          s.newID(),
			RoomID:      roomID,
			DisplayName: displayName,
			Team:        game.SmallerTeam(players),
			JoinedAt:    s.now().UTC(),
		}
		if err := tx.AddPlayer(ctx, player); err != nil {
			return err
		}

		status := room.Status
		if len(players)+1 == room.MaxPlayers && s.machine.CanTransition(room, models.StatusSettingNumbers) == nil {
			ok, err := tx.CompareAndSwapStatus(ctx, roomID, models.StatusWaiting, models.StatusSettingNumbers)
			if err != nil {
				return err
			}
			if ok {
				status = models.StatusSettingNumbers
			}
		}
		res = &JoinResult{Player: player, Status: status}
		return nil
	})
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	if res.Rejoined {
		logger.Log.Infof("玩家 %s 重新加入房间 %s", displayName, roomID)
	} else {
		logger.Log.Infof("玩家 %s 加入房间 %s，队伍 %s", displayName, roomID, res.Player.Team)
		if res.Status == models.StatusSettingNumbers {
			s.machine.Entered(ctx, roomID, models.StatusSettingNumbers)
		}
	}
	return res, nil
}

// ChangeTeam moves a player to team while teams are still open. It returns
// the roster after the move.
func (s *LobbyService) ChangeTeam(ctx context.Context, roomID, playerID string, team models.Team) ([]*models.Player, error) {
	if !team.Valid() {
		return nil, game.ErrInvalidTeam
	}
	var roster []*models.Player
	err := s.store.WithRoomLock(ctx, roomID, func(tx persistence.Store) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		players, err := tx.ListPlayers(ctx, roomID)
		if err != nil {
			return err
		}
		game.Backfill(players)
		var player *models.Player
		for _, p := range players {
			if p.ID == playerID {
				player = p
				break
			}
		}
		if player == nil {
			return game.ErrPlayerNotFound
		}
		if err := game.CheckSwitch(room, players, player, team); err != nil {
			return err
		}
		for _, p := range players {
			if p.ID == playerID {
				p.Team = team
			}
			if err := tx.UpdatePlayerTeam(ctx, roomID, p.ID, p.Team); err != nil {
				return err
			}
		}
		roster = players
		return nil
	})
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("房间 %s 玩家 %s 换到队伍 %s", roomID, playerID, team)
	return roster, nil
}

// Rematch creates a new room with the settings, players and teams of a
// finished room. Only a player of that room may ask for it.
func (s *LobbyService) Rematch(ctx context.Context, roomID, displayName string) (*models.Room, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, game.ErrNameRequired
	}
	orig, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if orig.Status != models.StatusFinished {
		return nil, game.ErrNotFinished
	}
	players, err := s.store.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	if byName(players, displayName) == nil {
		return nil, game.ErrPlayerNotFound
	}

	now := s.now().UTC()
	room := &models.Room{
		ID:            s.newID(),
		Name:          orig.Name,
		Status:        models.StatusWaiting,
		MaxPlayers:    orig.MaxPlayers,
		TurnTimeLimit: orig.TurnTimeLimit,
		CreatedAt:     now,
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create rematch room: %w", err)
	}
	for i, p := range players {
		np := &models.Player{
			ID:          s.newID(),
			RoomID:      room.ID,
			DisplayName: p.DisplayName,
			Team:        p.Team,
			JoinedAt:    now.Add(time.Duration(i) * time.Microsecond),
		}
		if err := s.store.AddPlayer(ctx, np); err != nil {
			return nil, fmt.Errorf("copy player %s: %w", p.DisplayName, err)
		}
	}
	if len(players) >= room.MaxPlayers {
		ok, err := s.store.CompareAndSwapStatus(ctx, room.ID, models.StatusWaiting, models.StatusSettingNumbers)
		if err != nil {
			return nil, fmt.Errorf("start rematch: %w", err)
		}
		if ok {
			room.Status = models.StatusSettingNumbers
			s.machine.Entered(ctx, room.ID, models.StatusSettingNumbers)
		}
	}
	logger.Log.Infof("房间 %s 再来一局 -> %s", roomID, room.ID)
	return room, nil
}

// View loads everything a room snapshot is built from. Unassigned players
// are backfilled first.
func (s *LobbyService) View(ctx context.Context, roomID string) (visibility.View, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return visibility.View{}, game.ErrRoomNotFound
	}
	if err != nil {
		return visibility.View{}, fmt.Errorf("load room: %w", err)
	}
	players, err := persistence.EnsureTeams(ctx, s.store, roomID)
	if err != nil {
		return visibility.View{}, fmt.Errorf("roster: %w", err)
	}
	guesses, err := s.store.ListGuesses(ctx, roomID)
	if err != nil {
		return visibility.View{}, fmt.Errorf("guesses: %w", err)
	}
	return visibility.View{Room: room, Players: players, Guesses: guesses}, nil
}

// Attach checks that playerID belongs to roomID before a connection is
// accepted, and backfills the teams of the room.
func (s *LobbyService) Attach(ctx context.Context, roomID, playerID string) (*models.Player, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, game.ErrRoomNotFound
		}
		return nil, fmt.Errorf("load room: %w", err)
	}
	players, err := persistence.EnsureTeams(ctx, s.store, roomID)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	for _, p := range players {
		if p.ID == playerID {
			return p, nil
		}
	}
	return nil, game.ErrPlayerNotFound
}

func byName(players []*models.Player, name string) *models.Player {
	for _, p := range players {
		if p.DisplayName == name {
			return p
		}
	}
	return nil
}
