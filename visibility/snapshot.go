// Package visibility builds the room snapshots sent to clients.
//
// Generic snapshots go to the whole room and carry no secret digits until
// the game is finished. Personalized snapshots go to one connection and
// additionally carry the requester's own team secret.
package visibility

import (
	"time"

	"github.com/wfunc/bullscows/models"
)

// View is everything a snapshot is built from.
type View struct {
	Room    *models.Room
	Players []*models.Player // join order
	Guesses []*models.Guess  // timestamp order
}

type PlayerState struct {
	ID              string      `json:"id"`
	Username        string      `json:"username"`
	Team            models.Team `json:"team"`
	HasSecretNumber bool        `json:"has_secret_number"`
	IsWinner        bool        `json:"is_winner"`
	JoinedAt        time.Time   `json:"joined_at"`
	SecretNumber    string      `json:"secret_number,omitempty"`
}

type GuessState struct {
	PlayerID       string    `json:"player_id"`
	Player         string    `json:"player"`
	TargetPlayerID string    `json:"target_player_id"`
	TargetPlayer   string    `json:"target_player"`
	Guess          string    `json:"guess"`
	Strikes        int       `json:"strikes"`
	Balls          int       `json:"balls"`
	IsCorrect      bool      `json:"is_correct"`
	Timestamp      time.Time `json:"timestamp"`
}

type RoomState struct {
	RoomID              string            `json:"room_id"`
	Name                string            `json:"name"`
	Status              models.RoomStatus `json:"status"`
	MaxPlayers          int               `json:"max_players"`
	Players             []PlayerState     `json:"players"`
	CurrentTurnPlayerID string            `json:"current_turn_player_id,omitempty"`
	CurrentTurnPlayer   *string           `json:"current_turn_player"`
	CurrentTurnTeam     models.Team       `json:"current_turn_team,omitempty"`
	TurnStartTime       *time.Time        `json:"turn_start_time"`
	TurnTimeLimit       int               `json:"turn_time_limit"`
	Guesses             []GuessState      `json:"guesses"`
	WinnerUsername      *string           `json:"winner_username"`
}

// EffectiveSecret is the secret that applies to p: its team's secret, or
// the legacy per-player secret when the team has none.
func EffectiveSecret(room *models.Room, p *models.Player) string {
	if s := room.TeamSecret(p.Team); s != "" {
		return s
	}
	return p.SecretNumber
}

// Generic builds the snapshot that may be broadcast to the whole room.
func Generic(v View) *RoomState {
	return build(v, func(*models.Player) bool {
		return v.Room.Status == models.StatusFinished
	})
}

// Personalized builds the snapshot for requesterID. It must only be sent to
// that requester's connection.
func Personalized(v View, requesterID string) *RoomState {
	var team models.Team
	for _, p := range v.Players {
		if p.ID == requesterID {
			team = p.Team
			break
		}
	}
	return build(v, func(p *models.Player) bool {
		if v.Room.Status == models.StatusFinished {
			return true
		}
		return team.Valid() && p.Team == team
	})
}

func build(v View, reveal func(*models.Player) bool) *RoomState {
	room := v.Room
	names := make(map[string]string, len(v.Players))
	st := &RoomState{
		RoomID:        room.ID,
		Name:          room.Name,
		Status:        room.Status,
		MaxPlayers:    room.MaxPlayers,
		Players:       make([]PlayerState, 0, len(v.Players)),
		TurnTimeLimit: room.TurnTimeLimit,
		Guesses:       make([]GuessState, 0, len(v.Guesses)),
	}

	for _, p := range v.Players {
		names[p.ID] = p.DisplayName
		secret := EffectiveSecret(room, p)
		ps := PlayerState{
			ID:              p.ID,
			Username:        p.DisplayName,
			Team:            p.Team,
			HasSecretNumber: secret != "",
			IsWinner:        p.IsWinner,
			JoinedAt:        p.JoinedAt,
		}
		if secret != "" && reveal(p) {
			ps.SecretNumber = secret
		}
		st.Players = append(st.Players, ps)
		if p.IsWinner && st.WinnerUsername == nil {
			name := p.DisplayName
			st.WinnerUsername = &name
		}
	}

	// 已结束的房间不再有当前回合，即使存储里还留着旧值
	if room.CurrentTurnPlayer != "" && room.Status != models.StatusFinished {
		st.CurrentTurnPlayerID = room.CurrentTurnPlayer
		if name, ok := names[room.CurrentTurnPlayer]; ok {
			st.CurrentTurnPlayer = &name
		}
		st.CurrentTurnTeam = room.CurrentTurnTeam
	}
	if t, ok := room.TurnStartTime(); ok && room.Status != models.StatusFinished {
		st.TurnStartTime = &t
	}

	for _, g := range v.Guesses {
		st.Guesses = append(st.Guesses, GuessState{
			PlayerID:       g.PlayerID,
			Player:         names[g.PlayerID],
			TargetPlayerID: g.TargetPlayerID,
			TargetPlayer:   names[g.TargetPlayerID],
			Guess:          g.Number,
			Strikes:        g.Strikes,
			Balls:          g.Balls,
			IsCorrect:      g.IsCorrect,
			Timestamp:      g.Timestamp,
		})
	}
	return st
}
