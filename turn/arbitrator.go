// Package turn owns turn order, guess application and turn timeouts.
//
// The room's TurnEpoch (turn start, unix microseconds) is the fencing token:
// every turn change is a compare-and-swap on it, so a delayed timeout skip
// that lost the race against a guess finds a different epoch and does nothing.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/monitor"
	"github.com/wfunc/bullscows/persistence"
	"github.com/wfunc/bullscows/state"
)

const (
	DefaultGracePeriod = 5 * time.Second

	msgTurnExpired = "Turn time expired!"
)

// Scheduler runs fn once after d. Delivery may be late or repeated.
type Scheduler interface {
	ScheduleAfter(d time.Duration, fn func())
}

// Notifier delivers timeout events to a room.
type Notifier interface {
	// TurnExpiring is the advisory sent when the limit passed.
	TurnExpiring(ctx context.Context, roomID, message string)
	// TurnSkipped is sent after a skip was applied; every session must refresh.
	TurnSkipped(ctx context.Context, roomID, message string)
}

type Options struct {
	GracePeriod time.Duration
	Now         func() time.Time
	NewID       func() string
	Machine     *state.Machine
	Monitor     *monitor.Monitor
}

type Arbitrator struct {
	store   persistence.Store
	sched   Scheduler
	notify  Notifier
	machine *state.Machine
	mon     *monitor.Monitor
	grace   time.Duration
	now     func() time.Time
	newID   func() string

	mu      sync.Mutex
	pending map[string]int64 // roomID -> fence of the skip waiting out its grace period
}

func New(store persistence.Store, sched Scheduler, notify Notifier, opts Options) *Arbitrator {
	a := &Arbitrator{
		store:   store,
		sched:   sched,
		notify:  notify,
		machine: opts.Machine,
		mon:     opts.Monitor,
		grace:   opts.GracePeriod,
		now:     opts.Now,
		newID:   opts.NewID,
		pending: make(map[string]int64),
	}
	if a.machine == nil {
		a.machine = state.NewLifecycle()
	}
	if a.grace <= 0 {
		a.grace = DefaultGracePeriod
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a
}

// Machine returns the lifecycle machine whose hooks fire on transitions.
func (a *Arbitrator) Machine() *state.Machine { return a.machine }

// nextEpoch returns now in microseconds, strictly after prev.
func (a *Arbitrator) nextEpoch(prev int64) int64 {
	e := a.now().UnixMicro()
	if e <= prev {
		e = prev + 1
	}
	return e
}

func (a *Arbitrator) loadRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := a.store.GetRoom(ctx, roomID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return room, nil
}

func (a *Arbitrator) roster(ctx context.Context, roomID string) ([]*models.Player, error) {
	players, err := persistence.EnsureTeams(ctx, a.store, roomID)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", roomID, err)
	}
	return players, nil
}

func findPlayer(players []*models.Player, id string) *models.Player {
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// SecretOutcome reports what SetSecret did.
type SecretOutcome struct {
	Team    models.Team `json:"team"`
	Started bool        `json:"started"`
}

// SetSecret commits the acting player's team secret. A team secret is set
// once. When both teams have one, the game starts.
func (a *Arbitrator) SetSecret(ctx context.Context, roomID, playerID, number string) (*SecretOutcome, error) {
	if err := game.ValidateSecret(number); err != nil {
		return nil, err
	}

	// 与换队共用房间锁，读到的队伍在写入密码之前不会变
	var team models.Team
	err := a.store.WithRoomLock(ctx, roomID, func(tx persistence.Store) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if !room.Status.AcceptsSecrets() {
			return game.ErrSecretLocked
		}
		players, err := tx.ListPlayers(ctx, roomID)
		if err != nil {
			return err
		}
		for _, p := range game.Backfill(players) {
			if err := tx.UpdatePlayerTeam(ctx, roomID, p.ID, p.Team); err != nil {
				return err
			}
		}
		player := findPlayer(players, playerID)
		if player == nil {
			return game.ErrPlayerNotFound
		}
		team = player.Team

		ok, err := tx.SetTeamSecret(ctx, roomID, team, number, playerID)
		if err != nil {
			return fmt.Errorf("set secret: %w", err)
		}
		if ok {
			return nil
		}
		cur, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		switch {
		case !cur.Status.AcceptsSecrets():
			return game.ErrSecretLocked
		case cur.TeamSecret(team) != "":
			return game.ErrSecretAlreadySet
		default:
			// the player left the team outside this process
			return game.ErrTeamChanged
		}
	})
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("房间 %s 队伍 %s 设置了密码", roomID, team)

	started, err := a.tryStart(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &SecretOutcome{Team: team, Started: started}, nil
}

// tryStart moves the room to PLAYING if both secrets are set. Only one caller
// wins the status swap; the others see false.
func (a *Arbitrator) tryStart(ctx context.Context, roomID string) (bool, error) {
	room, err := a.loadRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if a.machine.CanTransition(room, models.StatusPlaying) != nil {
		return false, nil
	}
	players, err := a.roster(ctx, roomID)
	if err != nil {
		return false, err
	}
	if len(players) == 0 {
		return false, nil
	}
	first := game.EarliestOf(players, models.TeamA)
	if first == nil {
		first = players[0]
	}

	turn := models.Turn{PlayerID: first.ID, Team: first.Team, Epoch: a.nextEpoch(0)}
	ok, err := a.store.StartGame(ctx, roomID, turn)
	if err != nil {
		return false, fmt.Errorf("start game: %w", err)
	}
	if !ok {
		return false, nil
	}
	a.machine.Entered(ctx, roomID, models.StatusPlaying)
	a.arm(roomID, turn.Epoch, room.TurnLimit())
	return true, nil
}

// GuessOutcome is the result payload of an accepted guess.
type GuessOutcome struct {
	Guess          string `json:"guess"`
	Strikes        int    `json:"strikes"`
	Balls          int    `json:"balls"`
	IsCorrect      bool   `json:"is_correct"`
	TargetPlayer   string `json:"target_player"`
	TargetPlayerID string `json:"target_player_id"`
	NextPlayerID   string `json:"next_player_id,omitempty"`
}

// SubmitGuess applies a guess by the player whose turn it is. targetID may
// be empty, in which case the earliest-joined opponent is targeted. Every
// rejection leaves the room untouched.
func (a *Arbitrator) SubmitGuess(ctx context.Context, roomID, playerID, guess, targetID string) (*GuessOutcome, error) {
	room, err := a.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.StatusPlaying {
		return nil, game.ErrNotPlaying
	}
	players, err := a.roster(ctx, roomID)
	if err != nil {
		return nil, err
	}
	actor := findPlayer(players, playerID)
	if actor == nil {
		return nil, game.ErrPlayerNotFound
	}
	if room.CurrentTurnPlayer != playerID {
		return nil, game.ErrNotYourTurn
	}
	if err := game.ValidateGuess(guess); err != nil {
		return nil, err
	}

	var target *models.Player
	if targetID == "" {
		target = game.EarliestOf(players, actor.Team.Opponent())
	} else {
		target = findPlayer(players, targetID)
	}
	if target == nil {
		return nil, game.ErrNoOpponent
	}

	secret := room.TeamSecret(target.Team)
	if secret == "" {
		secret = target.SecretNumber
	}
	fb := game.Score(secret, guess)

	record := &models.Guess{
		ID:             a.newID(),
		RoomID:         roomID,
		PlayerID:       actor.ID,
		TargetPlayerID: target.ID,
		Number:         guess,
		Strikes:        fb.Strikes,
		Balls:          fb.Balls,
		IsCorrect:      fb.Solved(),
		Timestamp:      a.now().UTC(),
	}

	var next *models.Turn
	if !fb.Solved() {
		p := game.NextTurn(players, room, actor.ID)
		next = &models.Turn{PlayerID: p.ID, Team: p.Team, Epoch: a.nextEpoch(room.TurnEpoch)}
	}

	ok, err := a.store.CommitGuess(ctx, record, room.TurnEpoch, next)
	if err != nil {
		return nil, fmt.Errorf("commit guess: %w", err)
	}
	if !ok {
		// the turn moved between our read and the commit
		return nil, game.ErrNotYourTurn
	}

	out := &GuessOutcome{
		Guess:          guess,
		Strikes:        fb.Strikes,
		Balls:          fb.Balls,
		IsCorrect:      fb.Solved(),
		TargetPlayer:   target.DisplayName,
		TargetPlayerID: target.ID,
	}
	if next == nil {
		a.mon.IncGuess("hit")
		logger.Log.Infof("房间 %s 玩家 %s 猜中 %s，游戏结束", roomID, actor.DisplayName, guess)
		a.machine.Entered(ctx, roomID, models.StatusFinished)
		return out, nil
	}

	a.mon.IncGuess("miss")
	out.NextPlayerID = next.PlayerID
	a.arm(roomID, next.Epoch, room.TurnLimit())
	return out, nil
}

// arm schedules a timeout check for the turn that started at epoch.
func (a *Arbitrator) arm(roomID string, epoch int64, after time.Duration) {
	a.sched.ScheduleAfter(after, func() {
		a.CheckTimeout(context.Background(), roomID, epoch)
	})
}

// CheckTimeout is the scheduled check for the turn that started at armed.
// A zero armed checks whatever turn is current. If the turn ran past its
// limit an advisory goes out and a skip fenced on the current epoch is
// scheduled after the grace period.
func (a *Arbitrator) CheckTimeout(ctx context.Context, roomID string, armed int64) {
	room, err := a.store.GetRoom(ctx, roomID)
	if err != nil {
		logger.Log.Warnf("timeout check for room %s: %v", roomID, err)
		return
	}
	if room.Status != models.StatusPlaying || room.TurnEpoch == 0 {
		return
	}
	if armed != 0 && room.TurnEpoch != armed {
		logger.Log.Debugf("房间 %s 超时检查已过期 (armed=%d current=%d)", roomID, armed, room.TurnEpoch)
		return
	}

	start, _ := room.TurnStartTime()
	limit := room.TurnLimit()
	if elapsed := a.now().Sub(start); elapsed < limit {
		a.arm(roomID, room.TurnEpoch, limit-elapsed)
		return
	}

	fence := room.TurnEpoch
	if !a.claimSkip(roomID, fence) {
		return
	}
	a.notify.TurnExpiring(ctx, roomID, msgTurnExpired)
	a.sched.ScheduleAfter(a.grace, func() {
		if _, err := a.SkipTurn(context.Background(), roomID, fence); err != nil {
			logger.Log.Errorf("skip turn in room %s: %v", roomID, err)
		}
	})
}

func (a *Arbitrator) claimSkip(roomID string, fence int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending[roomID] == fence {
		return false
	}
	a.pending[roomID] = fence
	return true
}

func (a *Arbitrator) releaseSkip(roomID string, fence int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending[roomID] == fence {
		delete(a.pending, roomID)
	}
}

// SkipTurn advances past the turn that started at fence. It reports false,
// without error, when that turn is already over.
func (a *Arbitrator) SkipTurn(ctx context.Context, roomID string, fence int64) (bool, error) {
	defer a.releaseSkip(roomID, fence)

	room, err := a.loadRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if room.Status != models.StatusPlaying || room.TurnEpoch != fence {
		a.mon.IncTurnSkip("aborted")
		logger.Log.Debugf("房间 %s 跳过回合已失效 (fence=%d current=%d)", roomID, fence, room.TurnEpoch)
		return false, nil
	}

	players, err := a.roster(ctx, roomID)
	if err != nil {
		return false, err
	}
	next := game.NextTurn(players, room, room.CurrentTurnPlayer)
	if next == nil {
		return false, nil
	}
	turn := models.Turn{PlayerID: next.ID, Team: next.Team, Epoch: a.nextEpoch(fence)}

	ok, err := a.store.AdvanceTurn(ctx, roomID, fence, turn)
	if err != nil {
		return false, fmt.Errorf("advance turn: %w", err)
	}
	if !ok {
		a.mon.IncTurnSkip("aborted")
		return false, nil
	}

	a.mon.IncTurnSkip("applied")
	logger.Log.Infof("房间 %s 回合超时，轮到 %s", roomID, next.DisplayName)
	a.notify.TurnSkipped(ctx, roomID, fmt.Sprintf("Turn timeout! Now it's %s's turn.", next.DisplayName))
	a.arm(roomID, turn.Epoch, room.TurnLimit())
	return true, nil
}

// Resume arms a timeout check for every game in progress. Used at startup,
// when scheduled checks of a previous process are gone.
func (a *Arbitrator) Resume(ctx context.Context) error {
	rooms, err := a.store.ListRooms(ctx, models.StatusPlaying)
	if err != nil {
		return fmt.Errorf("list playing rooms: %w", err)
	}
	for _, room := range rooms {
		if room.TurnEpoch == 0 {
			continue
		}
		a.arm(room.ID, room.TurnEpoch, 0)
	}
	logger.Log.Infof("恢复了 %d 个进行中房间的超时检查", len(rooms))
	return nil
}
