package event

import (
	"encoding/json"
	"fmt"
)

// New builds an envelope of type t stamped with the next version of c.
// Allocating the version is the only side effect; a payload that fails to
// encode consumes nothing.
func New(c *Counter, t Type, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: data, Version: c.Next()}, nil
}

// Join builds a player-wants-to-join envelope.
func Join(c *Counter, p JoinPayload) (Envelope, error) { return New(c, PlayerWantsToJoin, p) }

// Play builds a player-played envelope.
func Play(c *Counter, p PlayPayload) (Envelope, error) { return New(c, PlayerPlayed, p) }

// StartRequest builds a game-start-requested envelope.
func StartRequest(c *Counter, p PlayerPayload) (Envelope, error) {
	return New(c, GameStartRequested, p)
}

// StartApproved builds a game-start-approved envelope.
func StartApproved(c *Counter, p PlayerPayload) (Envelope, error) {
	return New(c, GameStartApproved, p)
}

// Distributed builds a cards-distributed envelope.
func Distributed(c *Counter, p CardsDistributedPayload) (Envelope, error) {
	return New(c, CardsDistributed, p)
}

// Ended builds a game-ended envelope.
func Ended(c *Counter, p GameEndedPayload) (Envelope, error) { return New(c, GameEnded, p) }

// Restart builds a game-restart-requested envelope.
func Restart(c *Counter, p PlayerPayload) (Envelope, error) {
	return New(c, GameRestartRequested, p)
}

// Updated builds a game-updated broadcast trigger.
func Updated(c *Counter, p GameUpdatedPayload) (Envelope, error) { return New(c, GameUpdated, p) }

// Accepted builds a play-accepted notification.
func Accepted(c *Counter, p PlayAcceptedPayload) (Envelope, error) {
	return New(c, PlayAccepted, p)
}

// Subscribe builds a player-subscribed envelope.
func Subscribe(c *Counter, p SubscribePayload) (Envelope, error) {
	return New(c, PlayerSubscribed, p)
}

// Message builds a message-to-player envelope.
func Message(c *Counter, p MessagePayload) (Envelope, error) { return New(c, MessageToPlayer, p) }

// CreateGame builds a game-create-requested envelope for the general stream.
func CreateGame(c *Counter, p CreateGamePayload) (Envelope, error) {
	return New(c, GameCreateRequested, p)
}

// LobbyJoin builds a player-wants-to-join-lobby envelope.
func LobbyJoin(c *Counter, p LobbyJoinPayload) (Envelope, error) {
	return New(c, PlayerWantsToJoinLobby, p)
}

// Created builds a game-created announcement.
func Created(c *Counter, p GameCreatedPayload) (Envelope, error) { return New(c, GameCreated, p) }

// Lobby builds a lobby-updated announcement.
func Lobby(c *Counter, p LobbyUpdatedPayload) (Envelope, error) { return New(c, LobbyUpdated, p) }
