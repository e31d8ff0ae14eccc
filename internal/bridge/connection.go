package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/event"
	"github.com/lox/heartsrealm/internal/gameid"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 8192
)

// ErrConnectionClosed is returned when sending to a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Connection is one websocket client. After auth it carries a player id;
// every game it joins adds a relay from that player's private queue.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu       sync.RWMutex
	playerID string
	name     string
	relays   map[string]broker.Subscription
}

// NewConnection wraps an upgraded socket.
func NewConnection(parent context.Context, conn *websocket.Conn, server *Server) *Connection {
	ctx, cancel := context.WithCancel(parent)
	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: server,
		logger: server.logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
		relays: make(map[string]broker.Subscription),
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close stops the relays and closes the socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		for _, sub := range c.relays {
			_ = sub.Close()
		}
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// PlayerID returns the authenticated player, empty before auth.
func (c *Connection) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

func (c *Connection) identity() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID, c.name
}

// SendMessage queues msg for the client without blocking. A client that
// cannot keep up is disconnected.
func (c *Connection) SendMessage(msg *Message) error {
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "player", c.PlayerID())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := c.server.clock.NewTicker(pingPeriod, "bridge", "ping")
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.PlayerID())

	if msg.Type == MessageTypeAuth {
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(data)
		return
	}

	playerID, name := c.identity()
	if playerID == "" {
		c.sendError("not_authenticated", "Must authenticate first")
		return
	}
	director := c.server.director
	ctx := c.ctx

	switch msg.Type {
	case MessageTypeListGames:
		c.reply(MessageTypeGameList, event.LobbyUpdatedPayload{Games: director.ListGames()})

	case MessageTypeCreateGame:
		id, err := director.CreateGame(ctx)
		if err != nil {
			c.sendError("create_failed", err.Error())
			return
		}
		c.joinGame(id, playerID, name)

	case MessageTypeJoinGame:
		var data GameData
		if !c.decode(msg, &data) {
			return
		}
		c.joinGame(data.GameID, playerID, name)

	case MessageTypeQuickMatch:
		id, err := director.QuickMatch(ctx, playerID, name)
		if err != nil {
			c.sendError("join_failed", err.Error())
			return
		}
		if err := c.relay(ctx, id, playerID); err != nil {
			c.sendError("join_failed", err.Error())
			return
		}
		c.reply(MessageTypeGameJoined, GameData{GameID: id})

	case MessageTypeSubscribe:
		var data GameData
		if !c.decode(msg, &data) {
			return
		}
		if err := c.relay(ctx, data.GameID, playerID); err != nil {
			c.sendError("subscribe_failed", err.Error())
			return
		}
		if err := director.Subscribe(ctx, data.GameID, playerID, name); err != nil {
			c.sendError("subscribe_failed", err.Error())
		}

	case MessageTypeStartGame:
		var data GameData
		if !c.decode(msg, &data) {
			return
		}
		if err := director.RequestStart(ctx, data.GameID, playerID); err != nil {
			c.sendError("start_failed", err.Error())
		}

	case MessageTypePlayCard:
		var data PlayCardData
		if !c.decode(msg, &data) {
			return
		}
		if err := director.Play(ctx, data.GameID, playerID, data.CardIndex); err != nil {
			c.sendError("play_failed", err.Error())
		}

	case MessageTypeRestartGame:
		var data GameData
		if !c.decode(msg, &data) {
			return
		}
		if err := director.Restart(ctx, data.GameID, playerID); err != nil {
			c.sendError("restart_failed", err.Error())
		}

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleAuth(data AuthData) {
	if data.Name == "" {
		c.sendError("invalid_auth", "Player name required")
		return
	}

	playerID := gameid.Generate()
	if secret := c.server.secret; secret != nil {
		sub, err := verifyToken(secret, data.Token)
		if err != nil {
			c.logger.Warn("Rejected token", "name", data.Name, "error", err)
			c.sendError("invalid_auth", "Invalid token")
			return
		}
		playerID = sub
	}

	c.mu.Lock()
	c.playerID = playerID
	c.name = data.Name
	c.mu.Unlock()

	c.logger.Info("Player authenticated", "player", playerID, "name", data.Name)
	c.reply(MessageTypeAuthResponse, AuthResponseData{PlayerID: playerID, Name: data.Name})
}

func (c *Connection) joinGame(gameID, playerID, name string) {
	if err := c.relay(c.ctx, gameID, playerID); err != nil {
		c.sendError("join_failed", err.Error())
		return
	}
	if err := c.server.director.Join(c.ctx, gameID, playerID, name); err != nil {
		c.sendError("join_failed", err.Error())
		return
	}
	c.reply(MessageTypeGameJoined, GameData{GameID: gameID})
}

// relay forwards playerID's private queue of gameID to the socket. The
// queue is declared here so nothing published before the sequencer applies
// the join is missed.
func (c *Connection) relay(ctx context.Context, gameID, playerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.relays[gameID]; ok {
		return nil
	}

	q := broker.PlayerQueue(gameID, playerID)
	if err := c.server.broker.AssertQueue(ctx, q); err != nil {
		return err
	}
	sub, err := c.server.broker.Subscribe(ctx, q)
	if err != nil {
		return err
	}
	c.relays[gameID] = sub

	go func() {
		for d := range sub.C() {
			msg, err := NewMessage(MessageTypeEvent, EventData{Queue: d.Queue, Envelope: d.Body})
			if err != nil {
				c.logger.Error("Failed to wrap event", "error", err)
				continue
			}
			if err := c.SendMessage(msg); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) decode(msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.sendError("invalid_message", "Failed to parse "+msg.Type.String()+" data")
		return false
	}
	return true
}

func (c *Connection) reply(t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", t, "error", err)
		return
	}
	_ = c.SendMessage(msg)
}

func (c *Connection) sendError(code, message string) {
	c.reply(MessageTypeError, ErrorData{Code: code, Message: message})
}
