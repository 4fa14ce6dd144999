// persistence/memory.go
package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/bullscows/models"
)

// MemoryStore 内存实现，用于单进程部署和测试
type MemoryStore struct {
	mu         sync.RWMutex
	rooms      map[string]*models.Room
	players    map[string][]*models.Player
	guesses    map[string][]*models.Guess
	strategies map[string]*models.TeamStrategy
	locks      *roomLocks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:      make(map[string]*models.Room),
		players:    make(map[string][]*models.Player),
		guesses:    make(map[string][]*models.Guess),
		strategies: make(map[string]*models.TeamStrategy),
		locks:      newRoomLocks(),
	}
}

func strategyKey(roomID string, team models.Team) string {
	return roomID + "/" + string(team)
}

func copyRoom(r *models.Room) *models.Room {
	c := *r
	return &c
}

func copyPlayer(p *models.Player) *models.Player {
	c := *p
	return &c
}

func (m *MemoryStore) CreateRoom(ctx context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.ID]; ok {
		return ErrDuplicate
	}
	m.rooms[room.ID] = copyRoom(room)
	return nil
}

func (m *MemoryStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyRoom(r), nil
}

func (m *MemoryStore) ListRooms(ctx context.Context, statuses ...models.RoomStatus) ([]*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]*models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if len(statuses) > 0 && !hasStatus(statuses, r.Status) {
			continue
		}
		rooms = append(rooms, copyRoom(r))
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

func hasStatus(statuses []models.RoomStatus, s models.RoomStatus) bool {
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) AddPlayer(ctx context.Context, player *models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[player.RoomID]; !ok {
		return ErrRecordNotFound
	}
	for _, p := range m.players[player.RoomID] {
		if p.ID == player.ID || p.DisplayName == player.DisplayName {
			return ErrDuplicate
		}
	}
	m.players[player.RoomID] = append(m.players[player.RoomID], copyPlayer(player))
	return nil
}

func (m *MemoryStore) findPlayer(roomID, playerID string) *models.Player {
	for _, p := range m.players[roomID] {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (m *MemoryStore) GetPlayer(ctx context.Context, roomID, playerID string) (*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.findPlayer(roomID, playerID)
	if p == nil {
		return nil, ErrRecordNotFound
	}
	return copyPlayer(p), nil
}

func (m *MemoryStore) FindPlayerByName(ctx context.Context, roomID, displayName string) (*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.players[roomID] {
		if p.DisplayName == displayName {
			return copyPlayer(p), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryStore) ListPlayers(ctx context.Context, roomID string) ([]*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	players := make([]*models.Player, 0, len(m.players[roomID]))
	for _, p := range m.players[roomID] {
		players = append(players, copyPlayer(p))
	}
	sort.SliceStable(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
	return players, nil
}

func (m *MemoryStore) UpdatePlayerTeam(ctx context.Context, roomID, playerID string, team models.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.findPlayer(roomID, playerID)
	if p == nil {
		return ErrRecordNotFound
	}
	p.Team = team
	return nil
}

func (m *MemoryStore) CompareAndSwapStatus(ctx context.Context, roomID string, from, to models.RoomStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return false, ErrRecordNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (m *MemoryStore) SetTeamSecret(ctx context.Context, roomID string, team models.Team, secret, setBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return false, ErrRecordNotFound
	}
	if !r.Status.AcceptsSecrets() || r.TeamSecret(team) != "" {
		return false, nil
	}
	if p := m.findPlayer(roomID, setBy); p == nil || p.Team != team {
		return false, nil
	}
	switch team {
	case models.TeamA:
		r.TeamASecret, r.TeamASetBy = secret, setBy
	case models.TeamB:
		r.TeamBSecret, r.TeamBSetBy = secret, setBy
	default:
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) StartGame(ctx context.Context, roomID string, turn models.Turn) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return false, ErrRecordNotFound
	}
	if !r.Status.AcceptsSecrets() || !r.BothSecretsSet() {
		return false, nil
	}
	r.Status = models.StatusPlaying
	setTurn(r, turn)
	return true, nil
}

func setTurn(r *models.Room, turn models.Turn) {
	r.CurrentTurnPlayer = turn.PlayerID
	r.CurrentTurnTeam = turn.Team
	r.TurnEpoch = turn.Epoch
}

func (m *MemoryStore) AdvanceTurn(ctx context.Context, roomID string, fence int64, turn models.Turn) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return false, ErrRecordNotFound
	}
	if r.Status != models.StatusPlaying || r.TurnEpoch != fence {
		return false, nil
	}
	setTurn(r, turn)
	return true, nil
}

func (m *MemoryStore) CommitGuess(ctx context.Context, guess *models.Guess, fence int64, next *models.Turn) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[guess.RoomID]
	if !ok {
		return false, ErrRecordNotFound
	}
	if r.Status != models.StatusPlaying || r.TurnEpoch != fence {
		return false, nil
	}

	if next == nil {
		winner := m.findPlayer(guess.RoomID, guess.PlayerID)
		if winner == nil {
			return false, ErrRecordNotFound
		}
		winner.IsWinner = true
		r.Status = models.StatusFinished
		// 结束后没有当前回合
		setTurn(r, models.Turn{})
	} else {
		setTurn(r, *next)
	}
	c := *guess
	m.guesses[guess.RoomID] = append(m.guesses[guess.RoomID], &c)
	return true, nil
}

func (m *MemoryStore) ListGuesses(ctx context.Context, roomID string) ([]*models.Guess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	guesses := make([]*models.Guess, 0, len(m.guesses[roomID]))
	for _, g := range m.guesses[roomID] {
		c := *g
		guesses = append(guesses, &c)
	}
	sort.SliceStable(guesses, func(i, j int) bool {
		return guesses[i].Timestamp.Before(guesses[j].Timestamp)
	})
	return guesses, nil
}

func (m *MemoryStore) GetStrategy(ctx context.Context, roomID string, team models.Team) (*models.TeamStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return nil, ErrRecordNotFound
	}
	key := strategyKey(roomID, team)
	s, ok := m.strategies[key]
	if !ok {
		s = models.NewTeamStrategy(roomID, team)
		s.UpdatedAt = time.Now().UTC()
		m.strategies[key] = s
	}
	c := s.Clone()
	c.Normalize()
	return c, nil
}

func (m *MemoryStore) UpdateStrategy(ctx context.Context, s *models.TeamStrategy, expected int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strategyKey(s.RoomID, s.Team)
	cur, ok := m.strategies[key]
	if !ok {
		return false, ErrRecordNotFound
	}
	if cur.Version != expected {
		return false, nil
	}
	m.strategies[key] = s.Clone()
	return true, nil
}

func (m *MemoryStore) WithRoomLock(ctx context.Context, roomID string, fn func(Store) error) error {
	unlock := m.locks.lock(roomID)
	defer unlock()
	m.mu.RLock()
	_, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return ErrRecordNotFound
	}
	return fn(m)
}

func (m *MemoryStore) Close() error { return nil }
