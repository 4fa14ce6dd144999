// models/models.go
package models

import (
	"time"
)

// RoomStatus 房间生命周期，只能向前推进
type RoomStatus string

const (
	StatusWaiting        RoomStatus = "waiting"
	StatusSettingNumbers RoomStatus = "setting_numbers"
	StatusPlaying        RoomStatus = "playing"
	StatusFinished       RoomStatus = "finished"
)

// Rank orders statuses along the lifecycle.
func (s RoomStatus) Rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusSettingNumbers:
		return 1
	case StatusPlaying:
		return 2
	case StatusFinished:
		return 3
	}
	return -1
}

// AcceptsSecrets reports whether team secrets and team changes are still allowed.
func (s RoomStatus) AcceptsSecrets() bool {
	return s == StatusWaiting || s == StatusSettingNumbers
}

type Team string

const (
	TeamNone Team = ""
	TeamA    Team = "A"
	TeamB    Team = "B"
)

func (t Team) Valid() bool { return t == TeamA || t == TeamB }

// Opponent returns the other team. TeamNone has no opponent.
func (t Team) Opponent() Team {
	switch t {
	case TeamA:
		return TeamB
	case TeamB:
		return TeamA
	}
	return TeamNone
}

// Room 房间持久化状态
type Room struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Status        RoomStatus `json:"status"`
	MaxPlayers    int        `json:"max_players"`
	TurnTimeLimit int        `json:"turn_time_limit"` // seconds
	CreatedAt     time.Time  `json:"created_at"`

	CurrentTurnPlayer string `json:"current_turn_player,omitempty"`
	CurrentTurnTeam   Team   `json:"current_turn_team,omitempty"`
	// TurnEpoch is the current turn's start time in unix microseconds, 0 when
	// no turn is active. It doubles as the fencing token for timeout skips.
	TurnEpoch int64 `json:"turn_epoch"`

	TeamASecret string `json:"-"`
	TeamBSecret string `json:"-"`
	TeamASetBy  string `json:"-"`
	TeamBSetBy  string `json:"-"`
}

// TurnLimit returns TurnTimeLimit as a duration.
func (r *Room) TurnLimit() time.Duration {
	return time.Duration(r.TurnTimeLimit) * time.Second
}

// TurnStartTime converts TurnEpoch back to a time. ok is false when no turn is active.
func (r *Room) TurnStartTime() (t time.Time, ok bool) {
	if r.TurnEpoch == 0 {
		return time.Time{}, false
	}
	return time.UnixMicro(r.TurnEpoch).UTC(), true
}

// TeamSecret returns the committed secret of team, or "".
func (r *Room) TeamSecret(team Team) string {
	switch team {
	case TeamA:
		return r.TeamASecret
	case TeamB:
		return r.TeamBSecret
	}
	return ""
}

// SecretSetBy returns the id of the player who committed team's secret.
func (r *Room) SecretSetBy(team Team) string {
	switch team {
	case TeamA:
		return r.TeamASetBy
	case TeamB:
		return r.TeamBSetBy
	}
	return ""
}

// BothSecretsSet reports whether both teams committed a secret.
func (r *Room) BothSecretsSet() bool {
	return r.TeamASecret != "" && r.TeamBSecret != ""
}

// Player 房间内的玩家，随房间一起销毁
type Player struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	DisplayName string    `json:"display_name"`
	Team        Team      `json:"team"`
	IsWinner    bool      `json:"is_winner"`
	JoinedAt    time.Time `json:"joined_at"`
	// SecretNumber is the pre-team per-player secret. It is only read as a
	// fallback when the player's team has no secret.
	SecretNumber string `json:"-"`
}

// Guess is append-only game history.
type Guess struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	PlayerID       string    `json:"player_id"`
	TargetPlayerID string    `json:"target_player_id"`
	Number         string    `json:"guess"`
	Strikes        int       `json:"strikes"`
	Balls          int       `json:"balls"`
	IsCorrect      bool      `json:"is_correct"`
	Timestamp      time.Time `json:"timestamp"`
}

// Turn is the turn pointer written atomically together with a new epoch.
type Turn struct {
	PlayerID string
	Team     Team
	Epoch    int64
}

// Slot marker values for TeamStrategy.SlotDigits.
const (
	SlotUnknown   = -1
	SlotPossible  = 0
	SlotConfirmed = 1
	SlotExcluded  = 2
)

const (
	BoardSlots  = 4
	BoardDigits = 10
)

// TeamStrategy is the per-(room, team) scratchpad shared by teammates.
type TeamStrategy struct {
	RoomID     string    `json:"room_id"`
	Team       Team      `json:"team"`
	Notes      string    `json:"notes"`
	SlotDigits [][]int   `json:"slot_digits"`
	DraftGuess []string  `json:"draft_guess"`
	Version    int       `json:"version"`
	LastEditor string    `json:"last_editor,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewTeamStrategy returns a board in its initial shape.
func NewTeamStrategy(roomID string, team Team) *TeamStrategy {
	s := &TeamStrategy{RoomID: roomID, Team: team, Version: 1}
	s.Normalize()
	return s
}

// Normalize forces SlotDigits to 4x10 and DraftGuess to 4 slots, resetting
// any malformed part. It reports whether anything changed.
func (s *TeamStrategy) Normalize() bool {
	changed := false
	if len(s.SlotDigits) != BoardSlots {
		s.SlotDigits = make([][]int, BoardSlots)
		for i := range s.SlotDigits {
			s.SlotDigits[i] = unknownRow()
		}
		changed = true
	} else {
		for i, row := range s.SlotDigits {
			if len(row) != BoardDigits {
				s.SlotDigits[i] = unknownRow()
				changed = true
			}
		}
	}
	if len(s.DraftGuess) != BoardSlots {
		s.DraftGuess = make([]string, BoardSlots)
		changed = true
	}
	return changed
}

// Clone returns a deep copy.
func (s *TeamStrategy) Clone() *TeamStrategy {
	c := *s
	c.SlotDigits = make([][]int, len(s.SlotDigits))
	for i, row := range s.SlotDigits {
		c.SlotDigits[i] = append([]int(nil), row...)
	}
	c.DraftGuess = append([]string(nil), s.DraftGuess...)
	return &c
}

func unknownRow() []int {
	row := make([]int, BoardDigits)
	for i := range row {
		row[i] = SlotUnknown
	}
	return row
}

// GameRecord 对局归档记录
type GameRecord struct {
	RoomID     string        `json:"room_id"`
	RoomName   string        `json:"room_name"`
	WinnerID   string        `json:"winner_id"`
	WinnerTeam Team          `json:"winner_team"`
	Players    []PlayerInfo  `json:"players"`
	Guesses    int           `json:"guesses"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// PlayerInfo 玩家信息（用于游戏记录）
type PlayerInfo struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Team        Team   `json:"team"`
	Outcome     string `json:"outcome"` // win/lose
	Guesses     int    `json:"guesses"`
}
