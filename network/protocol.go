package network

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/bullscows/models"
)

// 客户端 -> 服务器
const (
	MsgSetSecretNumber    = "set_secret_number"
	MsgMakeGuess          = "make_guess"
	MsgGetRoomState       = "get_room_state"
	MsgGetTeamStrategy    = "get_team_strategy"
	MsgUpdateTeamStrategy = "update_team_strategy"
	MsgChangeTeam         = "change_team"
)

// 服务器 -> 客户端
const (
	MsgRoomStateUpdate      = "room_state_update"
	MsgGameMessage          = "game_message"
	MsgTurnTimeout          = "turn_timeout"
	MsgTeamStrategyUpdate   = "team_strategy_update"
	MsgTeamStrategyInit     = "team_strategy_init"
	MsgTeamStrategyConflict = "team_strategy_conflict"
)

var ErrMissingType = errors.New("message has no type")

// Inbound is the union of every client message. Only the fields of the
// given Type are meaningful.
type Inbound struct {
	Type string `json:"type"`

	Number         string `json:"number,omitempty"`
	Guess          string `json:"guess,omitempty"`
	TargetPlayerID string `json:"target_player_id,omitempty"`

	Team models.Team `json:"team,omitempty"`

	Version    int      `json:"version,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
	SlotDigits [][]int  `json:"slot_digits,omitempty"`
	DraftGuess []string `json:"draft_guess,omitempty"`
}

// Outbound is a server event. Data and Message are mutually exclusive.
type Outbound struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Envelope is Outbound as seen by a client, with Data left undecoded.
type Envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

func Decode(raw []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	if in.Type == "" {
		return nil, ErrMissingType
	}
	return &in, nil
}

func Encode(msg Outbound) ([]byte, error) {
	return json.Marshal(msg)
}

func Event(typ string, data any) Outbound {
	return Outbound{Type: typ, Data: data}
}

func Text(typ, message string) Outbound {
	return Outbound{Type: typ, Message: message}
}
