package game

import (
	"sort"

	"github.com/wfunc/bullscows/models"
)

// SortByJoin orders players by join time. Equal join times fall back to id so
// the order is deterministic.
func SortByJoin(players []*models.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
}

// TeamCounts counts assigned players per team.
func TeamCounts(players []*models.Player) (a, b int) {
	for _, p := range players {
		switch p.Team {
		case models.TeamA:
			a++
		case models.TeamB:
			b++
		}
	}
	return a, b
}

// SmallerTeam returns the team with fewer members; ties go to A.
func SmallerTeam(players []*models.Player) models.Team {
	a, b := TeamCounts(players)
	if a <= b {
		return models.TeamA
	}
	return models.TeamB
}

// Backfill assigns a team to every unassigned player, in join order, each time
// picking the smaller team. It returns the players that changed. players must
// already be sorted by join time.
func Backfill(players []*models.Player) []*models.Player {
	a, b := TeamCounts(players)
	var changed []*models.Player
	for _, p := range players {
		if p.Team.Valid() {
			continue
		}
		if a <= b {
			p.Team = models.TeamA
			a++
		} else {
			p.Team = models.TeamB
			b++
		}
		changed = append(changed, p)
	}
	return changed
}

// CheckSwitch validates moving player to team. It does not mutate anything.
func CheckSwitch(room *models.Room, players []*models.Player, player *models.Player, to models.Team) error {
	if !to.Valid() {
		return ErrInvalidTeam
	}
	if !room.Status.AcceptsSecrets() {
		return ErrTeamLocked
	}
	if room.TeamASetBy == player.ID || room.TeamBSetBy == player.ID {
		return ErrTeamLocked
	}
	if player.Team == to {
		return nil
	}

	a, b := TeamCounts(players)
	switch player.Team {
	case models.TeamA:
		a--
	case models.TeamB:
		b--
	}
	if to == models.TeamA {
		a++
	} else {
		b++
	}
	if a-b > 1 || b-a > 1 {
		return ErrTeamImbalance
	}
	return nil
}

// EarliestOf returns the earliest-joined player of team, or nil. players must
// be sorted by join time.
func EarliestOf(players []*models.Player, team models.Team) *models.Player {
	for _, p := range players {
		if p.Team == team {
			return p
		}
	}
	return nil
}

// NextTurn finds the player who moves after the current turn: the next player
// in join order, wrapping around, whose team differs from the current turn's
// team. When the recorded turn player is not in the roster the search starts
// from fallbackID, then from the first player. players must be sorted by join
// time and non-empty.
func NextTurn(players []*models.Player, room *models.Room, fallbackID string) *models.Player {
	n := len(players)
	if n == 0 {
		return nil
	}

	idx := indexOf(players, room.CurrentTurnPlayer)
	if idx < 0 {
		idx = indexOf(players, fallbackID)
	}
	if idx < 0 {
		idx = 0
	}

	current := room.CurrentTurnTeam
	if !current.Valid() {
		current = players[idx].Team
	}
	for step := 1; step <= n; step++ {
		p := players[(idx+step)%n]
		if p.Team.Valid() && p.Team != current {
			return p
		}
	}
	// Every player is on one team; keep rotating so the room never stalls.
	return players[(idx+1)%n]
}

func indexOf(players []*models.Player, id string) int {
	if id == "" {
		return -1
	}
	for i, p := range players {
		if p.ID == id {
			return i
		}
	}
	return -1
}
