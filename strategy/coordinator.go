// Package strategy coordinates the per-team strategy board. Updates are
// accepted only against the current version; a stale version is rejected
// and the caller gets the current document back to reconcile.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/monitor"
	"github.com/wfunc/bullscows/persistence"
)

// Publisher delivers a board to the given players of a room.
type Publisher interface {
	PublishStrategy(ctx context.Context, roomID string, playerIDs []string, doc *models.TeamStrategy)
}

// UpdateRequest carries an edit. Nil fields are left unchanged.
type UpdateRequest struct {
	Version    int
	Notes      *string
	SlotDigits [][]int
	DraftGuess []string
}

type Coordinator struct {
	store persistence.Store
	pub   Publisher
	mon   *monitor.Monitor
	now   func() time.Time
}

func NewCoordinator(store persistence.Store, pub Publisher, mon *monitor.Monitor) *Coordinator {
	return &Coordinator{store: store, pub: pub, mon: mon, now: time.Now}
}

// teamOf returns the player's team, backfilling teams if it has none.
func (c *Coordinator) teamOf(ctx context.Context, roomID, playerID string) (models.Team, []*models.Player, error) {
	players, err := persistence.EnsureTeams(ctx, c.store, roomID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return models.TeamNone, nil, game.ErrRoomNotFound
	}
	if err != nil {
		return models.TeamNone, nil, fmt.Errorf("roster %s: %w", roomID, err)
	}
	for _, p := range players {
		if p.ID == playerID {
			if !p.Team.Valid() {
				return models.TeamNone, nil, game.ErrNoTeam
			}
			return p.Team, players, nil
		}
	}
	return models.TeamNone, nil, game.ErrPlayerNotFound
}

func (c *Coordinator) load(ctx context.Context, roomID string, team models.Team) (*models.TeamStrategy, error) {
	doc, err := c.store.GetStrategy(ctx, roomID, team)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	doc.Normalize()
	return doc, nil
}

// Get returns the board of the player's team.
func (c *Coordinator) Get(ctx context.Context, roomID, playerID string) (*models.TeamStrategy, error) {
	team, _, err := c.teamOf(ctx, roomID, playerID)
	if err != nil {
		return nil, err
	}
	return c.load(ctx, roomID, team)
}

// Update applies req for editorID's team. On ErrVersionConflict the returned
// document is the current one, unchanged.
func (c *Coordinator) Update(ctx context.Context, roomID, editorID string, req UpdateRequest) (*models.TeamStrategy, error) {
	team, players, err := c.teamOf(ctx, roomID, editorID)
	if err != nil {
		return nil, err
	}
	cur, err := c.load(ctx, roomID, team)
	if err != nil {
		return nil, err
	}
	if req.Version != cur.Version {
		c.mon.IncStrategyConflict()
		return cur, game.ErrVersionConflict
	}
	if err := Validate(req); err != nil {
		return nil, err
	}

	next := cur.Clone()
	if req.Notes != nil {
		next.Notes = *req.Notes
	}
	if req.SlotDigits != nil {
		next.SlotDigits = copyMatrix(req.SlotDigits)
	}
	if req.DraftGuess != nil {
		next.DraftGuess = append([]string(nil), req.DraftGuess...)
	}
	next.Version = cur.Version + 1
	next.LastEditor = editorID
	next.UpdatedAt = c.now().UTC()

	ok, err := c.store.UpdateStrategy(ctx, next, cur.Version)
	if err != nil {
		return nil, fmt.Errorf("update strategy: %w", err)
	}
	if !ok {
		c.mon.IncStrategyConflict()
		latest, err := c.load(ctx, roomID, team)
		if err != nil {
			return nil, err
		}
		return latest, game.ErrVersionConflict
	}

	logger.Log.Debugf("房间 %s 队伍 %s 策略板更新到 v%d", roomID, team, next.Version)
	if c.pub != nil {
		c.pub.PublishStrategy(ctx, roomID, teammates(players, team), next)
	}
	return next, nil
}

func teammates(players []*models.Player, team models.Team) []string {
	var ids []string
	for _, p := range players {
		if p.Team == team {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Validate checks the shape of the parts req replaces.
func Validate(req UpdateRequest) error {
	if req.SlotDigits != nil {
		if len(req.SlotDigits) != models.BoardSlots {
			return game.ErrInvalidBoard
		}
		for _, row := range req.SlotDigits {
			if len(row) != models.BoardDigits {
				return game.ErrInvalidBoard
			}
			for _, v := range row {
				if v < models.SlotUnknown || v > models.SlotExcluded {
					return game.ErrInvalidBoard
				}
			}
		}
	}
	if req.DraftGuess != nil {
		if len(req.DraftGuess) != models.BoardSlots {
			return game.ErrInvalidBoard
		}
		for _, d := range req.DraftGuess {
			if d != "" && (len(d) != 1 || d[0] < '0' || d[0] > '9') {
				return game.ErrInvalidBoard
			}
		}
	}
	return nil
}

func copyMatrix(m [][]int) [][]int {
	out := make([][]int, len(m))
	for i, row := range m {
		out[i] = append([]int(nil), row...)
	}
	return out
}
