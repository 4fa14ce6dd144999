package visibility

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bullscows/models"
)

var joined = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func fourPlayerView(status models.RoomStatus) View {
	room := &models.Room{
		ID: "r1", Name: "duel", Status: status, MaxPlayers: 4, TurnTimeLimit: 60,
		TeamASecret: "1234", TeamBSecret: "5678",
		TeamASetBy: "alice", TeamBSetBy: "bob",
	}
	if status == models.StatusPlaying {
		room.CurrentTurnPlayer = "carol"
		room.CurrentTurnTeam = models.TeamA
		room.TurnEpoch = joined.Add(time.Minute).UnixMicro()
	}
	players := []*models.Player{
		{ID: "alice", DisplayName: "Alice", Team: models.TeamA, JoinedAt: joined},
		{ID: "bob", DisplayName: "Bob", Team: models.TeamB, JoinedAt: joined.Add(time.Second)},
		{ID: "carol", DisplayName: "Carol", Team: models.TeamA, JoinedAt: joined.Add(2 * time.Second)},
		{ID: "dave", DisplayName: "Dave", Team: models.TeamB, JoinedAt: joined.Add(3 * time.Second)},
	}
	guesses := []*models.Guess{
		{PlayerID: "alice", TargetPlayerID: "bob", Number: "5687", Strikes: 2, Balls: 2, Timestamp: joined.Add(70 * time.Second)},
	}
	return View{Room: room, Players: players, Guesses: guesses}
}

func secrets(st *RoomState) map[string]string {
	out := map[string]string{}
	for _, p := range st.Players {
		if p.SecretNumber != "" {
			out[p.ID] = p.SecretNumber
		}
	}
	return out
}

func TestGeneric_NeverLeaksMidGame(t *testing.T) {
	for _, status := range []models.RoomStatus{models.StatusSettingNumbers, models.StatusPlaying} {
		t.Run(string(status), func(t *testing.T) {
			st := Generic(fourPlayerView(status))

			assert.Empty(t, secrets(st))
			for _, p := range st.Players {
				assert.True(t, p.HasSecretNumber, p.ID)
			}

			raw, err := json.Marshal(st)
			require.NoError(t, err)
			assert.False(t, strings.Contains(string(raw), "secret_number\""), "no secret_number key in %s", raw)
			assert.False(t, strings.Contains(string(raw), "1234"))
			assert.False(t, strings.Contains(string(raw), "5678"))
		})
	}
}

func TestGeneric_RevealsAllWhenFinished(t *testing.T) {
	v := fourPlayerView(models.StatusFinished)
	v.Players[0].IsWinner = true

	st := Generic(v)

	assert.Equal(t, map[string]string{"alice": "1234", "carol": "1234", "bob": "5678", "dave": "5678"}, secrets(st))
	require.NotNil(t, st.WinnerUsername)
	assert.Equal(t, "Alice", *st.WinnerUsername)
}

func TestPersonalized_OwnTeamOnly(t *testing.T) {
	v := fourPlayerView(models.StatusPlaying)

	st := Personalized(v, "carol")
	assert.Equal(t, map[string]string{"alice": "1234", "carol": "1234"}, secrets(st),
		"a teammate sees the team secret set by another member")

	st = Personalized(v, "dave")
	assert.Equal(t, map[string]string{"bob": "5678", "dave": "5678"}, secrets(st))
}

func TestPersonalized_UnassignedSeesNothing(t *testing.T) {
	v := fourPlayerView(models.StatusPlaying)
	v.Players = append(v.Players, &models.Player{ID: "eve", DisplayName: "Eve", JoinedAt: joined.Add(time.Hour)})

	assert.Empty(t, secrets(Personalized(v, "eve")))
	assert.Empty(t, secrets(Personalized(v, "stranger")))
}

func TestPersonalized_LegacyPlayerSecret(t *testing.T) {
	v := fourPlayerView(models.StatusPlaying)
	v.Room.TeamBSecret = ""
	v.Players[1].SecretNumber = "9081"

	st := Personalized(v, "dave")
	assert.Equal(t, map[string]string{"bob": "9081"}, secrets(st))
	assert.False(t, st.Players[3].HasSecretNumber)

	assert.Empty(t, secrets(Personalized(v, "alice"))["bob"])
}

func TestSnapshot_TurnAndHistory(t *testing.T) {
	st := Generic(fourPlayerView(models.StatusPlaying))

	require.NotNil(t, st.CurrentTurnPlayer)
	assert.Equal(t, "Carol", *st.CurrentTurnPlayer)
	assert.Equal(t, "carol", st.CurrentTurnPlayerID)
	assert.Equal(t, models.TeamA, st.CurrentTurnTeam)
	require.NotNil(t, st.TurnStartTime)
	assert.True(t, st.TurnStartTime.Equal(joined.Add(time.Minute)))
	assert.Equal(t, 60, st.TurnTimeLimit)
	assert.Nil(t, st.WinnerUsername)

	require.Len(t, st.Guesses, 1)
	g := st.Guesses[0]
	assert.Equal(t, "Alice", g.Player)
	assert.Equal(t, "Bob", g.TargetPlayer)
	assert.Equal(t, 2, g.Strikes)
	assert.Equal(t, 2, g.Balls)
}

func TestSnapshot_FinishedRoomHasNoTurn(t *testing.T) {
	v := fourPlayerView(models.StatusPlaying)
	v.Room.Status = models.StatusFinished
	v.Players[0].IsWinner = true

	for _, st := range []*RoomState{Generic(v), Personalized(v, "bob")} {
		assert.Nil(t, st.CurrentTurnPlayer)
		assert.Empty(t, st.CurrentTurnPlayerID)
		assert.Empty(t, st.CurrentTurnTeam)
		assert.Nil(t, st.TurnStartTime)
		require.NotNil(t, st.WinnerUsername)
		assert.Equal(t, "Alice", *st.WinnerUsername)
	}
}

func TestSnapshot_WaitingRoomHasNoTurn(t *testing.T) {
	v := fourPlayerView(models.StatusWaiting)
	v.Room.TeamASecret, v.Room.TeamBSecret = "", ""

	st := Generic(v)
	assert.Nil(t, st.CurrentTurnPlayer)
	assert.Nil(t, st.TurnStartTime)
	for _, p := range st.Players {
		assert.False(t, p.HasSecretNumber)
	}
}
