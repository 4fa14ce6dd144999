package rpc

import (
	"net/rpc"
	"testing"
	"time"

	"github.com/wfunc/bullscows/config"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/persistence"
	"github.com/wfunc/bullscows/services"
	"github.com/wfunc/bullscows/state"
)

func startServer(t *testing.T) *rpc.Client {
	t.Helper()
	lobby := services.NewLobbyService(persistence.NewMemoryStore(), state.NewLifecycle(), config.GameConfig{
		TurnTimeLimit: time.Minute,
		GracePeriod:   5 * time.Second,
		MinPlayers:    2,
		MaxPlayers:    10,
	})
	srv, err := NewServer("127.0.0.1:0", lobby)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Start()
	t.Cleanup(srv.Stop)

	client, err := rpc.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLobby_CreateJoinState(t *testing.T) {
	client := startServer(t)

	var created CreateRoomReply
	if err := client.Call("Lobby.CreateRoom", &CreateRoomArgs{Name: "rpc room", MaxPlayers: 2}, &created); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if created.RoomID == "" || created.Name != "rpc room" {
		t.Fatalf("unexpected reply %+v", created)
	}

	var alice, bob JoinRoomReply
	if err := client.Call("Lobby.JoinRoom", &JoinRoomArgs{RoomID: created.RoomID, Username: "alice"}, &alice); err != nil {
		t.Fatalf("JoinRoom alice: %v", err)
	}
	if err := client.Call("Lobby.JoinRoom", &JoinRoomArgs{RoomID: created.RoomID, Username: "bob"}, &bob); err != nil {
		t.Fatalf("JoinRoom bob: %v", err)
	}
	if alice.Team != models.TeamA || bob.Team != models.TeamB {
		t.Errorf("expected A/B, got %s/%s", alice.Team, bob.Team)
	}
	if bob.Status != models.StatusSettingNumbers {
		t.Errorf("expected full room to be setting numbers, got %s", bob.Status)
	}

	var state RoomStateReply
	if err := client.Call("Lobby.RoomState", &RoomStateArgs{RoomID: created.RoomID}, &state); err != nil {
		t.Fatalf("RoomState: %v", err)
	}
	if state.State == nil || len(state.State.Players) != 2 {
		t.Fatalf("expected 2 players in state, got %+v", state.State)
	}
	for _, p := range state.State.Players {
		if p.SecretNumber != "" {
			t.Errorf("player %s leaked a secret", p.ID)
		}
	}
}

func TestLobby_ErrorsCarryClientMessage(t *testing.T) {
	client := startServer(t)

	var reply JoinRoomReply
	err := client.Call("Lobby.JoinRoom", &JoinRoomArgs{RoomID: "missing", Username: "alice"}, &reply)
	if err == nil || err.Error() != "Room not found" {
		t.Fatalf("expected Room not found, got %v", err)
	}

	var created CreateRoomReply
	err = client.Call("Lobby.CreateRoom", &CreateRoomArgs{MaxPlayers: 3}, &created)
	if err == nil || err.Error() != "Invalid room settings" {
		t.Fatalf("expected Invalid room settings, got %v", err)
	}
}
