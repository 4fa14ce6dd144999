package game

import "errors"

// Error kinds. Every RejectError unwraps to exactly one of them.
var (
	ErrValidation = errors.New("validation")
	ErrConflict   = errors.New("state conflict")
	ErrNotFound   = errors.New("not found")
)

// RejectError is a per-operation rejection with a message fit for the client.
// A rejected operation never changes room state.
type RejectError struct {
	Kind    error
	Message string
}

func (e *RejectError) Error() string { return e.Message }

func (e *RejectError) Unwrap() error { return e.Kind }

func reject(kind error, msg string) *RejectError {
	return &RejectError{Kind: kind, Message: msg}
}

var (
	ErrInvalidGuess  = reject(ErrValidation, "Invalid guess format")
	ErrInvalidSecret = reject(ErrValidation, "Invalid secret number. Must be 4 unique digits.")
	ErrInvalidTeam   = reject(ErrValidation, "Invalid team")
	ErrInvalidBoard  = reject(ErrValidation, "Invalid strategy board shape")
	ErrInvalidRoom   = reject(ErrValidation, "Invalid room settings")
	ErrNameRequired  = reject(ErrValidation, "Username required")

	ErrNotYourTurn      = reject(ErrConflict, "Not your turn")
	ErrNotPlaying       = reject(ErrConflict, "Game is not in progress")
	ErrSecretLocked     = reject(ErrConflict, "Secrets can no longer be changed")
	ErrSecretAlreadySet = reject(ErrConflict, "Team secret already set")
	ErrNoTeam           = reject(ErrConflict, "Player has no team")
	ErrTeamLocked       = reject(ErrConflict, "Team can no longer be changed")
	ErrTeamImbalance    = reject(ErrConflict, "Teams would become unbalanced")
	ErrVersionConflict  = reject(ErrConflict, "Strategy was changed by a teammate")
	ErrRoomFull         = reject(ErrConflict, "Room is full")
	ErrGameInProgress   = reject(ErrConflict, "Game already in progress")
	ErrNotFinished      = reject(ErrConflict, "Can only rematch finished games")
	ErrTeamChanged      = reject(ErrConflict, "Your team changed, please try again")

	ErrRoomNotFound   = reject(ErrNotFound, "Room not found")
	ErrPlayerNotFound = reject(ErrNotFound, "Player not found")
	ErrNoOpponent     = reject(ErrNotFound, "No opponent available to target")
)

// Message returns the client-facing text for err, or fallback when err is
// not a rejection.
func Message(err error, fallback string) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Message
	}
	return fallback
}
