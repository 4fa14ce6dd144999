package network

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bullscows/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{"secret", `{"type":"set_secret_number","number":"1234"}`, Inbound{Type: MsgSetSecretNumber, Number: "1234"}},
		{"guess with target", `{"type":"make_guess","guess":"5678","target_player_id":"p2"}`,
			Inbound{Type: MsgMakeGuess, Guess: "5678", TargetPlayerID: "p2"}},
		{"change team", `{"type":"change_team","team":"B"}`, Inbound{Type: MsgChangeTeam, Team: models.TeamB}},
		{"state", `{"type":"get_room_state"}`, Inbound{Type: MsgGetRoomState}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestDecode_StrategyUpdateKeepsNilParts(t *testing.T) {
	got, err := Decode([]byte(`{"type":"update_team_strategy","version":3,"notes":""}`))
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	require.NotNil(t, got.Notes, "an empty notes string is still an edit")
	assert.Equal(t, "", *got.Notes)
	assert.Nil(t, got.SlotDigits)
	assert.Nil(t, got.DraftGuess)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"number":"1234"}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	raw, err := Encode(Text(MsgTurnTimeout, "Turn time expired!"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"turn_timeout","message":"Turn time expired!"}`, string(raw))

	raw, err = Encode(Event(MsgTeamStrategyInit, map[string]int{"version": 1}))
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, MsgTeamStrategyInit, env.Type)
	assert.JSONEq(t, `{"version":1}`, string(env.Data))
	assert.Empty(t, env.Message)
}

func TestWSConnection_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConnection(ws)
		defer conn.Close()
		conn.SetHeartbeat(time.Second)
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.Send(data); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	client := NewWSConnection(ws)
	defer client.Close()

	require.NoError(t, client.Send([]byte(`{"type":"get_room_state"}`)))
	echo, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"get_room_state"}`, string(echo))
	assert.NotNil(t, client.RemoteAddr())
}
