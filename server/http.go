package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/services"
	"github.com/wfunc/bullscows/visibility"
)

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a rejection to its status code. Anything else is a 500
// whose details stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, game.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, game.ErrNotFound):
		status = http.StatusNotFound
	default:
		logger.Log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]string{"error": game.Message(err, "Internal server error")})
}

// decodeBody tolerates an empty body; the lobby applies defaults.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return game.ErrInvalidRoom
	}
	return nil
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *GameServer) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req services.CreateRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	room, err := s.lobby.CreateRoom(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"room_id":         room.ID,
		"name":            room.Name,
		"max_players":     room.MaxPlayers,
		"turn_time_limit": room.TurnTimeLimit,
		"message":         "Room created successfully",
	})
}

func (s *GameServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.lobby.ListOpenRooms(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *GameServer) handleRoomDetail(w http.ResponseWriter, r *http.Request) {
	v, err := s.lobby.View(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": visibility.Generic(v)})
}

type usernameRequest struct {
	Username string `json:"username"`
}

func (s *GameServer) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, game.ErrNameRequired)
		return
	}
	roomID := chi.URLParam(r, "roomID")
	res, err := s.lobby.JoinRoom(r.Context(), roomID, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Joined room successfully"
	if res.Rejoined {
		msg = "Rejoined room successfully"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     msg,
		"room_id":     roomID,
		"player_id":   res.Player.ID,
		"team":        res.Player.Team,
		"room_status": res.Status,
	})
	// 已连接的客户端需要看到新玩家
	s.publishGeneric(r.Context(), roomID)
}

func (s *GameServer) handleRematch(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, game.ErrNameRequired)
		return
	}
	room, err := s.lobby.Rematch(r.Context(), chi.URLParam(r, "roomID"), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Rematch room created successfully",
		"room_id":     room.ID,
		"room_name":   room.Name,
		"room_status": room.Status,
	})
}

func (s *GameServer) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Game archive is disabled"})
		return
	}
	name := chi.URLParam(r, "name")
	wins, losses, err := s.stats.PlayerStats(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": name, "wins": wins, "losses": losses})
}
