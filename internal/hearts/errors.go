package hearts

import "errors"

var (
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrNotSeated        = errors.New("player is not seated")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrNotEnoughPlayers = errors.New("four players are required")
	ErrNotStarted       = errors.New("game has not started")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrGameEnded        = errors.New("game has ended")
	ErrNotEnded         = errors.New("game has not ended")
	ErrNotDealt         = errors.New("cards have not been dealt")
	ErrNoCards          = errors.New("no player holds cards")
	ErrTurnNotHeld      = errors.New("turn guard not held")
	ErrNoTurnHolder     = errors.New("no player holds the turn")
)
