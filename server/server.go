package server

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/bullscows/broadcast"
	"github.com/wfunc/bullscows/config"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/monitor"
	"github.com/wfunc/bullscows/persistence"
	"github.com/wfunc/bullscows/room"
	gameserver_rpc "github.com/wfunc/bullscows/rpc"
	"github.com/wfunc/bullscows/services"
	"github.com/wfunc/bullscows/session"
	"github.com/wfunc/bullscows/state"
	"github.com/wfunc/bullscows/strategy"
	"github.com/wfunc/bullscows/timer"
	"github.com/wfunc/bullscows/turn"
)

const shutdownTimeout = 10 * time.Second

// StatsSource answers win/loss questions from archived games.
type StatsSource interface {
	PlayerStats(ctx context.Context, displayName string) (wins, losses int, err error)
}

type Options struct {
	Config  *config.Config
	Store   persistence.Store
	Archive persistence.GameArchive // optional
	Stats   StatsSource             // optional
	Monitor *monitor.Monitor
	// Scheduler defaults to a TimerManager owned by the server.
	Scheduler turn.Scheduler
	Now       func() time.Time
}

type GameServer struct {
	cfg            *config.Config
	store          persistence.Store
	archive        persistence.GameArchive
	stats          StatsSource
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	now            func() time.Time
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	lobby          *services.LobbyService
	arbiter        *turn.Arbitrator
	boards         *strategy.Coordinator
	router         chi.Router
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(opts Options) *GameServer {
	s := &GameServer{
		cfg:            opts.Config,
		store:          opts.Store,
		archive:        opts.Archive,
		stats:          opts.Stats,
		monitor:        opts.Monitor,
		now:            opts.Now,
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.monitor == nil {
		s.monitor = monitor.NewMonitor(s.cfg.Metrics.Namespace)
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)

	sched := opts.Scheduler
	if sched == nil {
		s.timers = timer.NewTimerManager()
		sched = s.timers
	}

	machine := state.NewLifecycle()
	machine.OnEnter(models.StatusFinished, s.onFinished)

	s.lobby = services.NewLobbyService(s.store, machine, s.cfg.Game)
	s.lobby.SetClock(s.now)
	s.arbiter = turn.New(s.store, sched, &roomNotifier{s: s}, turn.Options{
		GracePeriod: s.cfg.Game.GracePeriod,
		Now:         opts.Now,
		Machine:     machine,
		Monitor:     s.monitor,
	})
	s.boards = strategy.NewCoordinator(s.store, &strategyPublisher{b: s.broadcaster}, s.monitor)
	s.router = s.routes()
	return s
}

func (s *GameServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.monitor.Handler())
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	r.Get("/ws/{roomID}", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Use(jsonContentType)

		r.Post("/rooms", s.handleCreateRoom)
		r.Get("/rooms", s.handleListRooms)
		r.Get("/rooms/{roomID}", s.handleRoomDetail)
		r.Post("/rooms/{roomID}/join", s.handleJoinRoom)
		r.Post("/rooms/{roomID}/rematch", s.handleRematch)
		r.Get("/players/{name}/stats", s.handlePlayerStats)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *GameServer) Handler() http.Handler { return s.router }

// Arbitrator exposes the turn arbitrator, e.g. to resume timeouts at startup.
func (s *GameServer) Arbitrator() *turn.Arbitrator { return s.arbiter }

func (s *GameServer) Lobby() *services.LobbyService { return s.lobby }

// Run serves HTTP and RPC until ctx is cancelled, then shuts both down.
func (s *GameServer) Run(ctx context.Context) error {
	rpcServer, err := gameserver_rpc.NewServer(s.cfg.Server.RPCAddress, s.lobby)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		rpcServer.Start()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.Shutdown()
		rpcServer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the read loops and the server-owned scheduler.
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.timers != nil {
			s.timers.Stop()
		}
	})
}
