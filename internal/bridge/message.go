package bridge

import (
	"encoding/json"
	"time"
)

// MessageType tags a websocket message.
type MessageType string

func (t MessageType) String() string { return string(t) }

// Client to server.
const (
	MessageTypeAuth        MessageType = "auth"
	MessageTypeListGames   MessageType = "list_games"
	MessageTypeCreateGame  MessageType = "create_game"
	MessageTypeJoinGame    MessageType = "join_game"
	MessageTypeQuickMatch  MessageType = "quick_match"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeStartGame   MessageType = "start_game"
	MessageTypePlayCard    MessageType = "play_card"
	MessageTypeRestartGame MessageType = "restart_game"
)

// Server to client.
const (
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeGameList     MessageType = "game_list"
	MessageTypeGameJoined   MessageType = "game_joined"
	MessageTypeEvent        MessageType = "event"
	MessageTypeError        MessageType = "error"
)

// Message is the envelope of every websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

type AuthData struct {
	Name  string `json:"name"`
	Token string `json:"token,omitempty"`
}

type GameData struct {
	GameID string `json:"gameId"`
}

type PlayCardData struct {
	GameID    string `json:"gameId"`
	CardIndex int    `json:"cardIndex"`
}

type AuthResponseData struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// EventData relays one envelope from a broker queue. Envelope is the wire
// envelope unchanged.
type EventData struct {
	Queue    string          `json:"queue"`
	Envelope json.RawMessage `json:"envelope"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
