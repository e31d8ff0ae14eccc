package realm

import (
	"context"

	"github.com/lox/heartsrealm/internal/event"
)

// Each command publishes exactly one envelope; its effect happens when the
// game's sequencer applies it.

// Join asks to seat playerID in a game.
func (d *Director) Join(ctx context.Context, gameID, playerID, name string) error {
	e, err := d.lookup(gameID)
	if err != nil {
		return err
	}
	_, err = e.seq.Primary().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Join(c, event.JoinPayload{PlayerID: playerID, Name: name})
	})
	return err
}

// Play asks to play the card at index of playerID's hand.
func (d *Director) Play(ctx context.Context, gameID, playerID string, index int) error {
	e, err := d.lookup(gameID)
	if err != nil {
		return err
	}
	_, err = e.seq.Primary().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Play(c, event.PlayPayload{PlayerID: playerID, CardIndex: index})
	})
	return err
}

// RequestStart asks to start a game.
func (d *Director) RequestStart(ctx context.Context, gameID, playerID string) error {
	e, err := d.lookup(gameID)
	if err != nil {
		return err
	}
	_, err = e.seq.Primary().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.StartRequest(c, event.PlayerPayload{PlayerID: playerID})
	})
	return err
}

// Restart asks to reset an ended game.
func (d *Director) Restart(ctx context.Context, gameID, playerID string) error {
	e, err := d.lookup(gameID)
	if err != nil {
		return err
	}
	_, err = e.seq.Primary().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Restart(c, event.PlayerPayload{PlayerID: playerID})
	})
	return err
}

// Subscribe asks for snapshots of a game on playerID's private queue.
func (d *Director) Subscribe(ctx context.Context, gameID, playerID, name string) error {
	e, err := d.lookup(gameID)
	if err != nil {
		return err
	}
	_, err = e.seq.Exchange().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Subscribe(c, event.SubscribePayload{PlayerID: playerID, Name: name})
	})
	return err
}

// RequestGame asks the lobby to create a game.
func (d *Director) RequestGame(ctx context.Context, requestedBy string) error {
	_, err := d.general.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.CreateGame(c, event.CreateGamePayload{RequestedBy: requestedBy})
	})
	return err
}

// JoinLobby asks the lobby to seat playerID, in gameID or in any open game
// when gameID is empty.
func (d *Director) JoinLobby(ctx context.Context, playerID, name, gameID string) error {
	req := event.LobbyJoinPayload{GameID: gameID, PlayerID: playerID, Name: name}
	_, err := d.general.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.LobbyJoin(c, req)
	})
	return err
}
