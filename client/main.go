// Command client is a bot that joins a room and plays it with a solver strategy.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/bullscows/game"
	"github.com/wfunc/bullscows/models"
	"github.com/wfunc/bullscows/network"
	"github.com/wfunc/bullscows/solver"
	"github.com/wfunc/bullscows/visibility"
)

type bot struct {
	conn     *websocket.Conn
	playerID string
	strategy solver.Strategy
	rng      *rand.Rand

	secretSent  bool
	// start of the turn we last guessed in
	guessedTurn time.Time
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "game server base URL")
	roomID := flag.String("room", "", "room to join; a new room is created when empty")
	name := flag.String("name", "bot", "display name")
	strategyName := flag.String("strategy", "entropy", "solver strategy: "+strings.Join(solver.Names, ", "))
	maxPlayers := flag.Int("max-players", 2, "max players of a newly created room")
	flag.Parse()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	strat, err := solver.New(*strategyName, rng)
	if err != nil {
		log.Fatalf("Strategy: %v", err)
	}

	if *roomID == "" {
		*roomID, err = createRoom(*serverURL, *maxPlayers)
		if err != nil {
			log.Fatalf("Create room failed: %v", err)
		}
		log.Printf("Created room %s", *roomID)
	}
	playerID, err := joinRoom(*serverURL, *roomID, *name)
	if err != nil {
		log.Fatalf("Join failed: %v", err)
	}

	u, err := url.Parse(*serverURL)
	if err != nil {
		log.Fatalf("Bad server URL: %v", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws/" + *roomID
	u.RawQuery = url.Values{"player_id": {playerID}}.Encode()
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	b := &bot{conn: c, playerID: playerID, strategy: strat, rng: rng}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var env network.Envelope
			if err := c.ReadJSON(&env); err != nil {
				log.Println("Read error:", err)
				return
			}
			if finished := b.handle(env); finished {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupt received, closing connection.")
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Write close error:", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

// handle reacts to one server message and reports whether the game is over.
func (b *bot) handle(env network.Envelope) bool {
	switch env.Type {
	case network.MsgGameMessage, network.MsgTurnTimeout:
		log.Printf("<- %s: %s", env.Type, env.Message)
		return false
	case network.MsgRoomStateUpdate:
	default:
		return false
	}

	var st visibility.RoomState
	if err := json.Unmarshal(env.Data, &st); err != nil {
		log.Printf("Bad room state: %v", err)
		return false
	}

	switch st.Status {
	case models.StatusWaiting, models.StatusSettingNumbers:
		if !b.secretSent && !b.hasSecret(&st) {
			secret := b.randomSecret()
			b.send(map[string]string{"type": network.MsgSetSecretNumber, "number": secret})
			b.secretSent = true
			log.Printf("-> SENT: secret %s", secret)
		}
	case models.StatusPlaying:
		if st.CurrentTurnPlayerID == b.playerID && st.TurnStartTime != nil && !st.TurnStartTime.Equal(b.guessedTurn) {
			b.guess(&st)
		}
	case models.StatusFinished:
		winner := "nobody"
		if st.WinnerUsername != nil {
			winner = *st.WinnerUsername
		}
		log.Printf("Game over after %d guesses, winner: %s", len(st.Guesses), winner)
		return true
	}
	return false
}

func (b *bot) hasSecret(st *visibility.RoomState) bool {
	for _, p := range st.Players {
		if p.ID == b.playerID {
			return p.HasSecretNumber
		}
	}
	return false
}

// guess replays our own guesses into the strategy and sends its next pick.
func (b *bot) guess(st *visibility.RoomState) {
	b.strategy.Reset()
	for _, g := range st.Guesses {
		if g.PlayerID == b.playerID {
			b.strategy.Observe(g.Guess, game.Feedback{Strikes: g.Strikes, Balls: g.Balls})
		}
	}
	next := b.strategy.Next()
	if next == "" {
		log.Printf("No candidates left after %d guesses", len(st.Guesses))
		return
	}
	b.guessedTurn = *st.TurnStartTime
	b.send(map[string]string{"type": network.MsgMakeGuess, "guess": next})
	log.Printf("-> SENT: guess %s (%d candidates)", next, b.strategy.Remaining())
}

func (b *bot) randomSecret() string {
	codes := solver.AllCodes()
	return codes[b.rng.Intn(len(codes))]
}

func (b *bot) send(v any) {
	if err := b.conn.WriteJSON(v); err != nil {
		log.Println("Write error:", err)
	}
}

func createRoom(base string, maxPlayers int) (string, error) {
	var out struct {
		RoomID string `json:"room_id"`
	}
	if err := postJSON(base+"/rooms", map[string]any{"max_players": maxPlayers}, &out); err != nil {
		return "", err
	}
	return out.RoomID, nil
}

func joinRoom(base, roomID, name string) (string, error) {
	var out struct {
		PlayerID string `json:"player_id"`
		Team     string `json:"team"`
		Message  string `json:"message"`
	}
	if err := postJSON(base+"/rooms/"+url.PathEscape(roomID)+"/join", map[string]string{"username": name}, &out); err != nil {
		return "", err
	}
	log.Printf("%s as %s on team %s", out.Message, name, out.Team)
	return out.PlayerID, nil
}

func postJSON(u string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(u, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s", resp.Status, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
