// persistence/teams.go
package persistence

import (
	"context"

	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/models"
)

// EnsureTeams assigns every unassigned player of roomID to the smaller team,
// in join order, and returns the roster in join order.
func EnsureTeams(ctx context.Context, s Store, roomID string) ([]*models.Player, error) {
	players, err := s.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !missingTeam(players) {
		return players, nil
	}

	err = s.WithRoomLock(ctx, roomID, func(tx Store) error {
		players, err = tx.ListPlayers(ctx, roomID)
		if err != nil {
			return err
		}
		for _, p := range game.Backfill(players) {
			if err := tx.UpdatePlayerTeam(ctx, roomID, p.ID, p.Team); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return players, nil
}

func missingTeam(players []*models.Player) bool {
	for _, p := range players {
		if !p.Team.Valid() {
			return true
		}
	}
	return false
}
