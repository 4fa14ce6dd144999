package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bullscows/config"
	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/persistence"
	"github.com/wfunc/bullscows/state"
)

var gameCfg = config.GameConfig{
	TurnTimeLimit: 60 * time.Second,
	GracePeriod:   5 * time.Second,
	MinPlayers:    2,
	MaxPlayers:    10,
}

func newLobby(t *testing.T) (*LobbyService, persistence.Store) {
	t.Helper()
	store := persistence.NewMemoryStore()
	svc := NewLobbyService(store, state.NewLifecycle(), gameCfg)
	var mu sync.Mutex
	tick := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	return svc, store
}

func TestCreateRoom_Defaults(t *testing.T) {
	svc, _ := newLobby(t)

	room, err := svc.CreateRoom(context.Background(), CreateRoomRequest{})
	require.NoError(t, err)
	assert.Regexp(t, `^Room [0-9a-f]{8}$`, room.Name)
	assert.Equal(t, 2, room.MaxPlayers)
	assert.Equal(t, 60, room.TurnTimeLimit)
	assert.Equal(t, models.StatusWaiting, room.Status)
}

func TestCreateRoom_Validation(t *testing.T) {
	svc, _ := newLobby(t)
	for _, req := range []CreateRoomRequest{
		{MaxPlayers: 3},
		{MaxPlayers: 12},
		{MaxPlayers: -2},
		{MaxPlayers: 4, TurnTimeLimit: -1},
	} {
		_, err := svc.CreateRoom(context.Background(), req)
		assert.ErrorIs(t, err, game.ErrInvalidRoom, "%+v", req)
	}

	room, err := svc.CreateRoom(context.Background(), CreateRoomRequest{Name: "  duel  ", MaxPlayers: 4, TurnTimeLimit: 30})
	require.NoError(t, err)
	assert.Equal(t, "duel", room.Name)
	assert.Equal(t, 30, room.TurnTimeLimit)
}

func TestJoinRoom_BalancesTeamsAndFills(t *testing.T) {
	svc, store := newLobby(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, CreateRoomRequest{MaxPlayers: 4})
	require.NoError(t, err)

	var teams []models.Team
	for i, name := range []string{"alice", "bob", "carol", "dave"} {
		res, err := svc.JoinRoom(ctx, room.ID, name)
		require.NoError(t, err)
		teams = append(teams, res.Player.Team)
		if i < 3 {
			assert.Equal(t, models.StatusWaiting, res.Status)
		} else {
			assert.Equal(t, models.StatusSettingNumbers, res.Status, "full room moves on")
		}
	}
	assert.Equal(t, []models.Team{models.TeamA, models.TeamB, models.TeamA, models.TeamB}, teams)

	got, err := store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSettingNumbers, got.Status)

	_, err = svc.JoinRoom(ctx, room.ID, "erin")
	assert.ErrorIs(t, err, game.ErrRoomFull)
}

func TestJoinRoom_Rejoin(t *testing.T) {
	svc, store := newLobby(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, CreateRoomRequest{})
	require.NoError(t, err)

	first, err := svc.JoinRoom(ctx, room.ID, "alice")
	require.NoError(t, err)
	again, err := svc.JoinRoom(ctx, room.ID, " alice ")
	require.NoError(t, err)

	assert.True(t, again.Rejoined)
	assert.Equal(t, first.Player.ID, again.Player.ID)
	players, err := store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, players, 1)
}

func TestJoinRoom_Rejections(t *testing.T) {
	svc, store := newLobby(t)
	ctx := context.Background()

	_, err := svc.JoinRoom(ctx, "missing", "alice")
	assert.ErrorIs(t, err, game.ErrRoomNotFound)

	room, err := svc.CreateRoom(ctx, CreateRoomRequest{MaxPlayers: 4})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, room.ID, "   ")
	assert.ErrorIs(t, err, game.ErrNameRequired)

	_, err = svc.JoinRoom(ctx, room.ID, "alice")
	require.NoError(t, err)
	ok, err := store.CompareAndSwapStatus(ctx, room.ID, models.StatusWaiting, models.StatusPlaying)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.JoinRoom(ctx, room.ID, "bob")
	assert.ErrorIs(t, err, game.ErrGameInProgress)

	res, err := svc.JoinRoom(ctx, room.ID, "alice")
	require.NoError(t, err, "an existing player can always rejoin")
	assert.True(t, res.Rejoined)
}

func TestJoinRoom_ConcurrentJoinsNeverOverfill(t *testing.T) {
	svc, store := newLobby(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, CreateRoomRequest{MaxPlayers: 4})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.JoinRoom(ctx, room.ID, fmt.Sprintf("p%d", i))
		}(i)
	}
	wg.Wait()

	players, err := store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, players, 4)
	a, b := game.TeamCounts(players)
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}

func TestListOpenRooms(t *testing.T) {
	svc, store := newLobby(t)
	ctx := context.Background()

	open, err := svc.CreateRoom(ctx, CreateRoomRequest{Name: "open"})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, open.ID, "alice")
	require.NoError(t, err)
	closed, err := svc.CreateRoom(ctx, CreateRoomRequest{Name: "closed"})
	require.NoError(t, err)
	_, err = store.CompareAndSwapStatus(ctx, closed.ID, models.StatusWaiting, models.StatusPlaying)
	require.NoError(t, err)

	rooms, err := svc.ListOpenRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "open", rooms[0].Name)
	assert.Equal(t, 1, rooms[0].PlayerCount)
}

func TestChangeTeam(t *testing.T) {
	svc, store := newLobby(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, CreateRoomRequest{MaxPlayers: 4})
	require.NoError(t, err)
	ids := map[string]string{}
	for _, name := range []string{"alice", "bob", "carol"} {
		res, err := svc.JoinRoom(ctx, room.ID, name)
		require.NoError(t, err)
		ids[name] = res.Player.ID
	}
	// A: alice, carol  B: bob

	roster, err := svc.ChangeTeam(ctx, room.ID, ids["carol"], models.TeamB)
	require.NoError(t, err)
	a, b := game.TeamCounts(roster)
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)

	_, err = svc.ChangeTeam(ctx, room.ID, ids["alice"], models.TeamB)
	assert.ErrorIs(t, err, game.ErrTeamImbalance)

	_, err = svc.ChangeTeam(ctx, room.ID, ids["alice"], models.Team("C"))
	assert.ErrorIs(t, err, game.ErrInvalidTeam)

	_, err = svc.ChangeTeam(ctx, room.ID, "ghost", models.TeamA)
	assert.ErrorIs(t, err, game.ErrPlayerNotFound)

	ok, err := store.SetTeamSecret(ctx, room.ID, models.TeamB, "1234", ids["bob"])
	require.NoError(t, err)
	require.True(t, ok)
	_, err = svc.ChangeTeam(ctx, room.ID, ids["bob"], models.TeamA)
	assert.ErrorIs(t, err, game.ErrTeamLocked, "a player who set the secret stays")

	_, err = store.CompareAndSwapStatus(ctx, room.ID, models.StatusWaiting, models.StatusPlaying)
	require.NoError(t, err)
	_, err = svc.ChangeTeam(ctx, room.ID, ids["carol"], models.TeamA)
	assert.ErrorIs(t, err, game.ErrTeamLocked)
}

func TestRematch(t *testing.T) {
	svc, store := newLobby(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, CreateRoomRequest{Name: "duel", MaxPlayers: 2, TurnTimeLimit: 45})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, room.ID, "alice")
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, room.ID, "bob")
	require.NoError(t, err)

	_, err = svc.Rematch(ctx, room.ID, "alice")
	assert.ErrorIs(t, err, game.ErrNotFinished)

	_, err = store.CompareAndSwapStatus(ctx, room.ID, models.StatusSettingNumbers, models.StatusFinished)
	require.NoError(t, err)

	_, err = svc.Rematch(ctx, room.ID, "mallory")
	assert.ErrorIs(t, err, game.ErrPlayerNotFound)

	next, err := svc.Rematch(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, room.ID, next.ID)
	assert.Equal(t, "duel", next.Name)
	assert.Equal(t, 45, next.TurnTimeLimit)
	assert.Equal(t, models.StatusSettingNumbers, next.Status)

	players, err := store.ListPlayers(ctx, next.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].DisplayName)
	assert.Equal(t, models.TeamA, players[0].Team)
	assert.Equal(t, "bob", players[1].DisplayName)
	assert.Equal(t, models.TeamB, players[1].Team)

	res, err := svc.JoinRoom(ctx, next.ID, "alice")
	require.NoError(t, err)
	assert.True(t, res.Rejoined)
}

func TestView_BackfillsAndOrders(t *testing.T) {
	svc, store := newLobby(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, CreateRoomRequest{MaxPlayers: 4})
	require.NoError(t, err)
	base := time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, store.AddPlayer(ctx, &models.Player{ID: id, RoomID: room.ID, DisplayName: id, JoinedAt: base.Add(time.Duration(i) * time.Second)}))
	}

	v, err := svc.View(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, v.Players, 3)
	assert.Equal(t, []models.Team{models.TeamA, models.TeamB, models.TeamA},
		[]models.Team{v.Players[0].Team, v.Players[1].Team, v.Players[2].Team})
	assert.Empty(t, v.Guesses)

	_, err = svc.View(ctx, "missing")
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
}

func TestAttach(t *testing.T) {
	svc, _ := newLobby(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, CreateRoomRequest{})
	require.NoError(t, err)
	res, err := svc.JoinRoom(ctx, room.ID, "alice")
	require.NoError(t, err)

	p, err := svc.Attach(ctx, room.ID, res.Player.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.DisplayName)

	_, err = svc.Attach(ctx, room.ID, "ghost")
	assert.ErrorIs(t, err, game.ErrPlayerNotFound)
	_, err = svc.Attach(ctx, "missing", res.Player.ID)
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
}
