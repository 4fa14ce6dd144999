package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/services"
	"github.com/wfunc/bullscows/visibility"
)

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer listens on addr and registers the lobby service as "Lobby".
func NewServer(addr string, lobby *services.LobbyService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Lobby", NewLobbyService(lobby)); err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		server:   srv,
	}, nil
}

// Addr is the address actually bound, useful with ":0".
func (s *Server) Addr() string { return s.address }

// Start begins listening for RPC requests. It returns once the listener is closed.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// LobbyService is the struct that exposes RPC methods.
// Methods follow the net/rpc signature: exported method, exported arguments,
// second argument is a pointer, return type is error.
type LobbyService struct {
	lobby *services.LobbyService
}

func NewLobbyService(lobby *services.LobbyService) *LobbyService {
	return &LobbyService{lobby: lobby}
}

type CreateRoomArgs struct {
	Name          string
	MaxPlayers    int
	TurnTimeLimit int
}

type CreateRoomReply struct {
	RoomID string
	Name   string
}

type JoinRoomArgs struct {
	RoomID   string
	Username string
}

type JoinRoomReply struct {
	PlayerID string
	Team     models.Team
	Status   models.RoomStatus
	Rejoined bool
}

type RoomStateArgs struct {
	RoomID string
}

type RoomStateReply struct {
	State *visibility.RoomState
}

// rpcError keeps client-facing messages; net/rpc only carries strings.
func rpcError(err error) error {
	return errors.New(game.Message(err, err.Error()))
}

func (ls *LobbyService) CreateRoom(args *CreateRoomArgs, reply *CreateRoomReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	room, err := ls.lobby.CreateRoom(ctx, services.CreateRoomRequest{
		Name:          args.Name,
		MaxPlayers:    args.MaxPlayers,
		TurnTimeLimit: args.TurnTimeLimit,
	})
	if err != nil {
		return rpcError(err)
	}
	reply.RoomID = room.ID
	reply.Name = room.Name
	return nil
}

func (ls *LobbyService) JoinRoom(args *JoinRoomArgs, reply *JoinRoomReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	res, err := ls.lobby.JoinRoom(ctx, args.RoomID, args.Username)
	if err != nil {
		return rpcError(err)
	}
	reply.PlayerID = res.Player.ID
	reply.Team = res.Player.Team
	reply.Status = res.Status
	reply.Rejoined = res.Rejoined
	return nil
}

// RoomState returns the generic snapshot. It never carries secrets of a
// game in progress.
func (ls *LobbyService) RoomState(args *RoomStateArgs, reply *RoomStateReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	v, err := ls.lobby.View(ctx, args.RoomID)
	if err != nil {
		return rpcError(err)
	}
	reply.State = visibility.Generic(v)
	return nil
}
