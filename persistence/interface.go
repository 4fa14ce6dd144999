// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"sync"

	"github.com/wfunc/bullscows/models"
)

// Store 房间状态存储。所有修改房间状态、回合指针、队伍密码的操作都是
// compare-and-swap：返回 false 表示条件不满足，没有写入任何数据。
type Store interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// ListRooms returns rooms in creation order, filtered by status when any
	// statuses are given.
	ListRooms(ctx context.Context, statuses ...models.RoomStatus) ([]*models.Room, error)

	AddPlayer(ctx context.Context, player *models.Player) error
	GetPlayer(ctx context.Context, roomID, playerID string) (*models.Player, error)
	FindPlayerByName(ctx context.Context, roomID, displayName string) (*models.Player, error)
	// ListPlayers returns the roster in join order.
	ListPlayers(ctx context.Context, roomID string) ([]*models.Player, error)
	UpdatePlayerTeam(ctx context.Context, roomID, playerID string, team models.Team) error

	CompareAndSwapStatus(ctx context.Context, roomID string, from, to models.RoomStatus) (bool, error)
	// SetTeamSecret writes team's secret only if it is still empty, the room
	// still accepts secrets and setBy is currently a member of team.
	SetTeamSecret(ctx context.Context, roomID string, team models.Team, secret, setBy string) (bool, error)
	// StartGame moves a room with both secrets set from WAITING or
	// SETTING_NUMBERS to PLAYING and installs the first turn.
	StartGame(ctx context.Context, roomID string, turn models.Turn) (bool, error)
	// AdvanceTurn installs turn only if the room is PLAYING and its epoch
	// still equals fence.
	AdvanceTurn(ctx context.Context, roomID string, fence int64, turn models.Turn) (bool, error)
	// CommitGuess appends guess fenced on the turn epoch. A nil next marks the
	// guessing player as winner and finishes the room; otherwise next becomes
	// the current turn. Both happen atomically or not at all.
	CommitGuess(ctx context.Context, guess *models.Guess, fence int64, next *models.Turn) (bool, error)
	// ListGuesses returns history in timestamp order.
	ListGuesses(ctx context.Context, roomID string) ([]*models.Guess, error)

	// GetStrategy returns the team's board, creating it on first access.
	GetStrategy(ctx context.Context, roomID string, team models.Team) (*models.TeamStrategy, error)
	// UpdateStrategy replaces the board only if its version equals expected.
	UpdateStrategy(ctx context.Context, s *models.TeamStrategy, expected int) (bool, error)

	// WithRoomLock runs fn with roster changes of roomID serialized. fn must
	// use the Store it is given and must not call WithRoomLock again.
	WithRoomLock(ctx context.Context, roomID string, fn func(Store) error) error

	Close() error
}

// GameArchive 对局归档
type GameArchive interface {
	SaveGameRecord(ctx context.Context, record *models.GameRecord) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
)

// roomLocks hands out one mutex per room id and forgets it once unused.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

func (l *roomLocks) lock(roomID string) func() {
	l.mu.Lock()
	rl, ok := l.locks[roomID]
	if !ok {
		rl = &roomLock{}
		l.locks[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, roomID)
		}
		l.mu.Unlock()
	}
}
