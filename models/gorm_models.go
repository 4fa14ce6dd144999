// models/gorm_models.go
package models

import (
	"encoding/json"
	"time"
)

// GormRoom 房间表
type GormRoom struct {
	ID                string `gorm:"primaryKey;size:36"`
	Name              string `gorm:"not null"`
	Status            string `gorm:"size:20;index;not null"`
	MaxPlayers        int    `gorm:"default:2"`
	TurnTimeLimit     int    `gorm:"default:60"`
	CurrentTurnPlayer string `gorm:"size:36"`
	CurrentTurnTeam   string `gorm:"size:1"`
	TurnEpoch         int64  `gorm:"default:0"`
	TeamASecret       string `gorm:"column:team_a_secret;size:4"`
	TeamBSecret       string `gorm:"column:team_b_secret;size:4"`
	TeamASetBy        string `gorm:"column:team_a_set_by;size:36"`
	TeamBSetBy        string `gorm:"column:team_b_set_by;size:36"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (GormRoom) TableName() string { return "rooms" }

// GormPlayer 玩家表，(room_id, display_name) 唯一
type GormPlayer struct {
	ID           string    `gorm:"primaryKey;size:36"`
	RoomID       string    `gorm:"size:36;not null;index;uniqueIndex:idx_player_room_name"`
	DisplayName  string    `gorm:"not null;uniqueIndex:idx_player_room_name"`
	Team         string    `gorm:"size:1"`
	IsWinner     bool      `gorm:"default:false"`
	SecretNumber string    `gorm:"size:4"`
	JoinedAt     time.Time `gorm:"index;not null"`
}

func (GormPlayer) TableName() string { return "players" }

// GormGuess 猜测记录表，只追加
type GormGuess struct {
	ID             string    `gorm:"primaryKey;size:36"`
	RoomID         string    `gorm:"size:36;not null;index"`
	PlayerID       string    `gorm:"size:36;not null"`
	TargetPlayerID string    `gorm:"size:36;not null"`
	Number         string    `gorm:"size:4;not null"`
	Strikes        int       `gorm:"not null"`
	Balls          int       `gorm:"not null"`
	IsCorrect      bool      `gorm:"default:false"`
	Timestamp      time.Time `gorm:"index;not null"`
}

func (GormGuess) TableName() string { return "guesses" }

// GormTeamStrategy 队伍策略板，(room_id, team) 唯一。
// SlotDigits/DraftGuess 以 JSON 文本保存
type GormTeamStrategy struct {
	ID         uint   `gorm:"primaryKey"`
	RoomID     string `gorm:"size:36;not null;uniqueIndex:idx_strategy_room_team"`
	Team       string `gorm:"size:1;not null;uniqueIndex:idx_strategy_room_team"`
	Notes      string `gorm:"type:text"`
	SlotDigits string `gorm:"type:text"`
	DraftGuess string `gorm:"type:text"`
	Version    int    `gorm:"not null;default:1"`
	LastEditor string `gorm:"size:36"`
	UpdatedAt  time.Time
}

func (GormTeamStrategy) TableName() string { return "team_strategies" }

func (r *GormRoom) ToDomain() *Room {
	return &Room{
		ID:                r.ID,
		Name:              r.Name,
		Status:            RoomStatus(r.Status),
		MaxPlayers:        r.MaxPlayers,
		TurnTimeLimit:     r.TurnTimeLimit,
		CreatedAt:         r.CreatedAt,
		CurrentTurnPlayer: r.CurrentTurnPlayer,
		CurrentTurnTeam:   Team(r.CurrentTurnTeam),
		TurnEpoch:         r.TurnEpoch,
		TeamASecret:       r.TeamASecret,
		TeamBSecret:       r.TeamBSecret,
		TeamASetBy:        r.TeamASetBy,
		TeamBSetBy:        r.TeamBSetBy,
	}
}

func NewGormRoom(r *Room) *GormRoom {
	return &GormRoom{
		ID:                r.ID,
		Name:              r.Name,
		Status:            string(r.Status),
		MaxPlayers:        r.MaxPlayers,
		TurnTimeLimit:     r.TurnTimeLimit,
		CurrentTurnPlayer: r.CurrentTurnPlayer,
		CurrentTurnTeam:   string(r.CurrentTurnTeam),
		TurnEpoch:         r.TurnEpoch,
		TeamASecret:       r.TeamASecret,
		TeamBSecret:       r.TeamBSecret,
		TeamASetBy:        r.TeamASetBy,
		TeamBSetBy:        r.TeamBSetBy,
		CreatedAt:         r.CreatedAt,
	}
}

func (p *GormPlayer) ToDomain() *Player {
	return &Player{
		ID:           p.ID,
		RoomID:       p.RoomID,
		DisplayName:  p.DisplayName,
		Team:         Team(p.Team),
		IsWinner:     p.IsWinner,
		JoinedAt:     p.JoinedAt,
		SecretNumber: p.SecretNumber,
	}
}

func NewGormPlayer(p *Player) *GormPlayer {
	return &GormPlayer{
		ID:           p.ID,
		RoomID:       p.RoomID,
		DisplayName:  p.DisplayName,
		Team:         string(p.Team),
		IsWinner:     p.IsWinner,
		SecretNumber: p.SecretNumber,
		JoinedAt:     p.JoinedAt,
	}
}

func (g *GormGuess) ToDomain() *Guess {
	return &Guess{
		ID:             g.ID,
		RoomID:         g.RoomID,
		PlayerID:       g.PlayerID,
		TargetPlayerID: g.TargetPlayerID,
		Number:         g.Number,
		Strikes:        g.Strikes,
		Balls:          g.Balls,
		IsCorrect:      g.IsCorrect,
		Timestamp:      g.Timestamp,
	}
}

func NewGormGuess(g *Guess) *GormGuess {
	return &GormGuess{
		ID:             g.ID,
		RoomID:         g.RoomID,
		PlayerID:       g.PlayerID,
		TargetPlayerID: g.TargetPlayerID,
		Number:         g.Number,
		Strikes:        g.Strikes,
		Balls:          g.Balls,
		IsCorrect:      g.IsCorrect,
		Timestamp:      g.Timestamp,
	}
}

// ToDomain decodes the board. Undecodable columns are left empty and fixed
// up by Normalize.
func (s *GormTeamStrategy) ToDomain() *TeamStrategy {
	ts := &TeamStrategy{
		RoomID:     s.RoomID,
		Team:       Team(s.Team),
		Notes:      s.Notes,
		Version:    s.Version,
		LastEditor: s.LastEditor,
		UpdatedAt:  s.UpdatedAt,
	}
	_ = json.Unmarshal([]byte(s.SlotDigits), &ts.SlotDigits)
	_ = json.Unmarshal([]byte(s.DraftGuess), &ts.DraftGuess)
	ts.Normalize()
	return ts
}

func NewGormTeamStrategy(s *TeamStrategy) (*GormTeamStrategy, error) {
	slots, err := json.Marshal(s.SlotDigits)
	if err != nil {
		return nil, err
	}
	draft, err := json.Marshal(s.DraftGuess)
	if err != nil {
		return nil, err
	}
	return &GormTeamStrategy{
		RoomID:     s.RoomID,
		Team:       string(s.Team),
		Notes:      s.Notes,
		SlotDigits: string(slots),
		DraftGuess: string(draft),
		Version:    s.Version,
		LastEditor: s.LastEditor,
		UpdatedAt:  s.UpdatedAt,
	}, nil
}
