package event

import "github.com/lox/heartsrealm/internal/deck"

// Type tags an envelope and selects its handler.
type Type string

// Game primary stream: commands and the state transitions derived from them.
const (
	PlayerWantsToJoin    Type = "player-wants-to-join"
	PlayerPlayed         Type = "player-played"
	GameStartRequested   Type = "game-start-requested"
	GameStartApproved    Type = "game-start-approved"
	CardsDistributed     Type = "cards-distributed"
	GameEnded            Type = "game-ended"
	GameRestartRequested Type = "game-restart-requested"
)

// Game exchange stream and private player queues: fan-out to subscribers.
const (
	GameUpdated      Type = "game-updated"
	PlayAccepted     Type = "play-accepted"
	PlayerSubscribed Type = "player-subscribed"
	MessageToPlayer  Type = "message-to-player"
)

// General (lobby) stream.
const (
	GameCreateRequested    Type = "game-create-requested"
	PlayerWantsToJoinLobby Type = "player-wants-to-join-lobby"
	GameCreated            Type = "game-created"
	LobbyUpdated           Type = "lobby-updated"
)

// JoinPayload asks to seat a player.
type JoinPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// PlayPayload asks to play the card at CardIndex of the player's hand.
type PlayPayload struct {
	PlayerID  string `json:"playerId"`
	CardIndex int    `json:"cardIndex"`
}

// PlayerPayload carries the player behind a start or restart request.
type PlayerPayload struct {
	PlayerID string `json:"playerId"`
}

// SubscribePayload registers a recipient for snapshots.
type SubscribePayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

// CardsDistributedPayload reports a completed deal.
type CardsDistributedPayload struct {
	FirstPlayerID string         `json:"firstPlayerId"`
	HandSizes     map[string]int `json:"handSizes"`
}

// PlayAcceptedPayload describes a play that took effect.
type PlayAcceptedPayload struct {
	PlayerID     string    `json:"playerId"`
	Card         deck.Card `json:"card"`
	Points       int       `json:"points"`
	TurnNumber   int       `json:"turnNumber"`
	HeartsBroken bool      `json:"heartsBroken"`
	NextPlayerID string    `json:"nextPlayerId,omitempty"`
}

// Standing is one player's final total.
type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
}

// GameEndedPayload carries the winner and every player's final points. On a
// tie WinnerID is empty and Tie is set.
type GameEndedPayload struct {
	WinnerID  string     `json:"winnerId,omitempty"`
	Tie       bool       `json:"tie,omitempty"`
	Standings []Standing `json:"standings"`
}

// GameUpdatedPayload triggers a snapshot broadcast; Cause names the event
// whose application made it necessary.
type GameUpdatedPayload struct {
	Cause   Type   `json:"cause"`
	Version uint64 `json:"version"`
}

// MessagePayload is a private notice to one player, usually a rejection.
type MessagePayload struct {
	PlayerID string `json:"playerId"`
	Message  string `json:"message"`
	Cause    Type   `json:"cause,omitempty"`
}

// CreateGamePayload asks the director for a new game.
type CreateGamePayload struct {
	RequestedBy string `json:"requestedBy,omitempty"`
}

// LobbyJoinPayload asks the director to seat a player. An empty GameID
// means any open game.
type LobbyJoinPayload struct {
	GameID   string `json:"gameId,omitempty"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// GameCreatedPayload announces a new game.
type GameCreatedPayload struct {
	GameID string `json:"gameId"`
}

// GameSummary is the lobby's view of a game.
type GameSummary struct {
	ID             string `json:"id"`
	State          string `json:"state"`
	Seated         int    `json:"seated"`
	Viewers        int    `json:"viewers"`
	PrimaryVersion uint64 `json:"primaryVersion"`
	Restarts       int    `json:"restarts"`
}

// LobbyUpdatedPayload lists the live games.
type LobbyUpdatedPayload struct {
	Games []GameSummary `json:"games"`
}
