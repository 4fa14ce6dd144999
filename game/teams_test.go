package game

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bullscows/models"
)

func roster(teams ...models.Team) []*models.Player {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	players := make([]*models.Player, len(teams))
	for i, team := range teams {
		players[i] = &models.Player{
			ID:       string(rune('a' + i)),
			Team:     team,
			JoinedAt: base.Add(time.Duration(i) * time.Second),
		}
	}
	return players
}

func TestSmallerTeam_TieGoesToA(t *testing.T) {
	assert.Equal(t, models.TeamA, SmallerTeam(nil))
	assert.Equal(t, models.TeamB, SmallerTeam(roster(models.TeamA)))
	assert.Equal(t, models.TeamA, SmallerTeam(roster(models.TeamA, models.TeamB)))
	assert.Equal(t, models.TeamA, SmallerTeam(roster(models.TeamB, models.TeamB, models.TeamA)))
}

func TestBackfill(t *testing.T) {
	players := roster(models.TeamNone, models.TeamA, models.TeamNone, models.TeamNone)

	changed := Backfill(players)

	require.Len(t, changed, 3)
	assert.Equal(t, models.TeamB, players[0].Team)
	assert.Equal(t, models.TeamA, players[1].Team)
	assert.Equal(t, models.TeamA, players[2].Team)
	assert.Equal(t, models.TeamB, players[3].Team)

	assert.Empty(t, Backfill(players), "second pass must be a no-op")
}

func TestCheckSwitch(t *testing.T) {
	cases := []struct {
		name    string
		status  models.RoomStatus
		teams   []models.Team
		mover   int
		to      models.Team
		setByA  string
		wantErr error
	}{
		{name: "balanced swap in 1v1 is allowed", status: models.StatusWaiting, teams: []models.Team{models.TeamA, models.TeamB}, mover: 0, to: models.TeamB},
		{name: "2v2 to 1v3 rejected", status: models.StatusSettingNumbers, teams: []models.Team{models.TeamA, models.TeamB, models.TeamA, models.TeamB}, mover: 0, to: models.TeamB, wantErr: ErrTeamImbalance},
		{name: "3v1 to 2v2 allowed", status: models.StatusWaiting, teams: []models.Team{models.TeamA, models.TeamA, models.TeamA, models.TeamB}, mover: 1, to: models.TeamB},
		{name: "same team is a no-op", status: models.StatusWaiting, teams: []models.Team{models.TeamA, models.TeamB}, mover: 0, to: models.TeamA},
		{name: "playing locks teams", status: models.StatusPlaying, teams: []models.Team{models.TeamA, models.TeamB}, mover: 0, to: models.TeamB, wantErr: ErrTeamLocked},
		{name: "secret contributor is locked", status: models.StatusSettingNumbers, teams: []models.Team{models.TeamA, models.TeamB}, mover: 0, to: models.TeamB, setByA: "a", wantErr: ErrTeamLocked},
		{name: "invalid team", status: models.StatusWaiting, teams: []models.Team{models.TeamA, models.TeamB}, mover: 0, to: "C", wantErr: ErrInvalidTeam},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			players := roster(tc.teams...)
			room := &models.Room{Status: tc.status, TeamASetBy: tc.setByA}
			err := CheckSwitch(room, players, players[tc.mover], tc.to)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestNextTurn_AlternatesTeamsInJoinOrder(t *testing.T) {
	players := roster(models.TeamA, models.TeamB, models.TeamA, models.TeamB)
	room := &models.Room{CurrentTurnPlayer: "a", CurrentTurnTeam: models.TeamA}

	var order []string
	for i := 0; i < 5; i++ {
		next := NextTurn(players, room, "")
		require.NotNil(t, next)
		assert.NotEqual(t, room.CurrentTurnTeam, next.Team)
		order = append(order, next.ID)
		room.CurrentTurnPlayer, room.CurrentTurnTeam = next.ID, next.Team
	}
	assert.Equal(t, []string{"b", "c", "d", "a", "b"}, order)
}

func TestNextTurn_UnknownCurrentFallsBack(t *testing.T) {
	players := roster(models.TeamA, models.TeamB, models.TeamA, models.TeamB)

	room := &models.Room{CurrentTurnPlayer: "gone"}
	assert.Equal(t, "d", NextTurn(players, room, "c").ID)

	room = &models.Room{CurrentTurnPlayer: "gone"}
	assert.Equal(t, "b", NextTurn(players, room, "").ID)
}

func TestRejectErrorKinds(t *testing.T) {
	assert.True(t, errors.Is(ErrNotYourTurn, ErrConflict))
	assert.True(t, errors.Is(ErrInvalidGuess, ErrValidation))
	assert.True(t, errors.Is(ErrNoOpponent, ErrNotFound))
	assert.Equal(t, "Not your turn", Message(ErrNotYourTurn, "x"))
	assert.Equal(t, "x", Message(errors.New("boom"), "x"))
}
